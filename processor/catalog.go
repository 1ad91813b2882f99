package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/siga-labs/txq/academic"
	"github.com/siga-labs/txq/job"
)

// ── Aula ──────────────────────────────────────────────────────────

type aulaProcessor struct {
	store  academic.Store
	logger *slog.Logger
}

type aulaPayload struct {
	Codigo    string `json:"codigo"`
	Capacidad int    `json:"capacidad"`
	Ubicacion string `json:"ubicacion"`
}

func (p *aulaProcessor) Process(ctx context.Context, j *job.Job) job.Result {
	return guarded(ctx, p.store, j, func(ctx context.Context) job.Result {
		var pl aulaPayload
		if err := json.Unmarshal(j.Payload, &pl); err != nil {
			return job.InvalidSkip("Aula payload is not valid JSON")
		}
		if strings.TrimSpace(pl.Codigo) == "" {
			return job.InvalidSkip("Aula requires a codigo")
		}

		switch j.Operation {
		case job.OpCreate:
			if _, err := p.store.AulaByCodigo(ctx, pl.Codigo); err == nil {
				return job.NotFoundSkip(fmt.Sprintf("aula %s already exists", pl.Codigo))
			} else if !isNotFound(err) {
				return classifyStoreErr("aula lookup", err)
			}
			a := &academic.Aula{Codigo: pl.Codigo, Capacidad: pl.Capacidad, Ubicacion: pl.Ubicacion}
			if err := p.store.CreateAula(ctx, a); err != nil {
				return classifyStoreErr("create aula", err)
			}
			return job.Success()

		case job.OpUpdate:
			a, err := p.store.AulaByCodigo(ctx, pl.Codigo)
			if err != nil {
				if isNotFound(err) {
					return job.NotFoundSkip(fmt.Sprintf("aula %s does not exist", pl.Codigo))
				}
				return classifyStoreErr("aula lookup", err)
			}
			a.Capacidad = pl.Capacidad
			a.Ubicacion = pl.Ubicacion
			if err := p.store.UpdateAula(ctx, a); err != nil {
				return classifyStoreErr("update aula", err)
			}
			return job.Success()

		case job.OpDelete:
			if err := p.store.DeleteAula(ctx, pl.Codigo); err != nil {
				if isNotFound(err) {
					return job.NotFoundSkip(fmt.Sprintf("aula %s does not exist", pl.Codigo))
				}
				return classifyStoreErr("delete aula", err)
			}
			return job.Success()

		default:
			return job.InvalidSkip(fmt.Sprintf("operation %s not supported for Aula", j.Operation))
		}
	})
}

// ── Nivel ─────────────────────────────────────────────────────────

type nivelProcessor struct {
	store  academic.Store
	logger *slog.Logger
}

type nivelPayload struct {
	Numero int    `json:"numero"`
	Nombre string `json:"nombre"`
}

func (p *nivelProcessor) Process(ctx context.Context, j *job.Job) job.Result {
	return guarded(ctx, p.store, j, func(ctx context.Context) job.Result {
		var pl nivelPayload
		if err := json.Unmarshal(j.Payload, &pl); err != nil {
			return job.InvalidSkip("Nivel payload is not valid JSON")
		}
		if pl.Numero <= 0 {
			return job.InvalidSkip("Nivel requires a positive numero")
		}

		switch j.Operation {
		case job.OpCreate:
			if _, err := p.store.NivelByNumero(ctx, pl.Numero); err == nil {
				return job.NotFoundSkip(fmt.Sprintf("nivel %d already exists", pl.Numero))
			} else if !isNotFound(err) {
				return classifyStoreErr("nivel lookup", err)
			}
			n := &academic.Nivel{Numero: pl.Numero, Nombre: pl.Nombre}
			if err := p.store.CreateNivel(ctx, n); err != nil {
				return classifyStoreErr("create nivel", err)
			}
			return job.Success()

		case job.OpUpdate:
			n, err := p.store.NivelByNumero(ctx, pl.Numero)
			if err != nil {
				if isNotFound(err) {
					return job.NotFoundSkip(fmt.Sprintf("nivel %d does not exist", pl.Numero))
				}
				return classifyStoreErr("nivel lookup", err)
			}
			n.Nombre = pl.Nombre
			if err := p.store.UpdateNivel(ctx, n); err != nil {
				return classifyStoreErr("update nivel", err)
			}
			return job.Success()

		case job.OpDelete:
			if err := p.store.DeleteNivel(ctx, pl.Numero); err != nil {
				if isNotFound(err) {
					return job.NotFoundSkip(fmt.Sprintf("nivel %d does not exist", pl.Numero))
				}
				return classifyStoreErr("delete nivel", err)
			}
			return job.Success()

		default:
			return job.InvalidSkip(fmt.Sprintf("operation %s not supported for Nivel", j.Operation))
		}
	})
}

// ── Materia ───────────────────────────────────────────────────────

type materiaProcessor struct {
	store  academic.Store
	logger *slog.Logger
}

type materiaPayload struct {
	Codigo      string `json:"codigo"`
	Nombre      string `json:"nombre"`
	Creditos    int    `json:"creditos"`
	NivelID     int64  `json:"nivelId"`
	NivelNumero int    `json:"nivelNumero"`
}

// resolveNivel accepts either a direct nivel id or a nivel numero.
func (p *materiaProcessor) resolveNivel(ctx context.Context, pl *materiaPayload) (int64, job.Result, bool) {
	if pl.NivelID > 0 {
		return pl.NivelID, job.Result{}, true
	}
	if pl.NivelNumero <= 0 {
		return 0, job.InvalidSkip("Materia requires nivelId or nivelNumero"), false
	}
	n, err := p.store.NivelByNumero(ctx, pl.NivelNumero)
	if err != nil {
		if isNotFound(err) {
			return 0, job.NotFoundSkip(fmt.Sprintf("nivel %d does not exist", pl.NivelNumero)), false
		}
		return 0, classifyStoreErr("nivel lookup", err), false
	}
	return n.ID, job.Result{}, true
}

func (p *materiaProcessor) Process(ctx context.Context, j *job.Job) job.Result {
	return guarded(ctx, p.store, j, func(ctx context.Context) job.Result {
		var pl materiaPayload
		if err := json.Unmarshal(j.Payload, &pl); err != nil {
			return job.InvalidSkip("Materia payload is not valid JSON")
		}
		if strings.TrimSpace(pl.Codigo) == "" {
			return job.InvalidSkip("Materia requires a codigo")
		}

		switch j.Operation {
		case job.OpCreate:
			nivelID, res, ok := p.resolveNivel(ctx, &pl)
			if !ok {
				return res
			}
			if _, err := p.store.MateriaByCodigo(ctx, pl.Codigo); err == nil {
				return job.NotFoundSkip(fmt.Sprintf("materia %s already exists", pl.Codigo))
			} else if !isNotFound(err) {
				return classifyStoreErr("materia lookup", err)
			}
			m := &academic.Materia{Codigo: pl.Codigo, Nombre: pl.Nombre, Creditos: pl.Creditos, NivelID: nivelID}
			if err := p.store.CreateMateria(ctx, m); err != nil {
				return classifyStoreErr("create materia", err)
			}
			return job.Success()

		case job.OpUpdate:
			m, err := p.store.MateriaByCodigo(ctx, pl.Codigo)
			if err != nil {
				if isNotFound(err) {
					return job.NotFoundSkip(fmt.Sprintf("materia %s does not exist", pl.Codigo))
				}
				return classifyStoreErr("materia lookup", err)
			}
			nivelID, res, ok := p.resolveNivel(ctx, &pl)
			if !ok {
				return res
			}
			m.Nombre = pl.Nombre
			m.Creditos = pl.Creditos
			m.NivelID = nivelID
			if err := p.store.UpdateMateria(ctx, m); err != nil {
				return classifyStoreErr("update materia", err)
			}
			return job.Success()

		case job.OpDelete:
			if err := p.store.DeleteMateria(ctx, pl.Codigo); err != nil {
				if isNotFound(err) {
					return job.NotFoundSkip(fmt.Sprintf("materia %s does not exist", pl.Codigo))
				}
				return classifyStoreErr("delete materia", err)
			}
			return job.Success()

		default:
			return job.InvalidSkip(fmt.Sprintf("operation %s not supported for Materia", j.Operation))
		}
	})
}

// ── Docente ───────────────────────────────────────────────────────

type docenteProcessor struct {
	store  academic.Store
	logger *slog.Logger
}

type docentePayload struct {
	CI       string `json:"ci"`
	Nombre   string `json:"nombre"`
	Email    string `json:"email"`
	Telefono string `json:"telefono"`
	Estado   string `json:"estado"`
}

func (p *docenteProcessor) Process(ctx context.Context, j *job.Job) job.Result {
	return guarded(ctx, p.store, j, func(ctx context.Context) job.Result {
		var pl docentePayload
		if err := json.Unmarshal(j.Payload, &pl); err != nil {
			return job.InvalidSkip("Docente payload is not valid JSON")
		}
		if strings.TrimSpace(pl.CI) == "" {
			return job.InvalidSkip("Docente requires a ci")
		}

		switch j.Operation {
		case job.OpCreate:
			if _, err := p.store.DocenteByCI(ctx, pl.CI); err == nil {
				return job.NotFoundSkip(fmt.Sprintf("docente %s already exists", pl.CI))
			} else if !isNotFound(err) {
				return classifyStoreErr("docente lookup", err)
			}
			estado := pl.Estado
			if estado == "" {
				estado = "ACTIVO"
			}
			d := &academic.Docente{CI: pl.CI, Nombre: pl.Nombre, Email: pl.Email, Telefono: pl.Telefono, Estado: estado}
			if err := p.store.CreateDocente(ctx, d); err != nil {
				return classifyStoreErr("create docente", err)
			}
			return job.Success()

		case job.OpUpdate:
			d, err := p.store.DocenteByCI(ctx, pl.CI)
			if err != nil {
				if isNotFound(err) {
					return job.NotFoundSkip(fmt.Sprintf("docente %s does not exist", pl.CI))
				}
				return classifyStoreErr("docente lookup", err)
			}
			d.Nombre = pl.Nombre
			d.Email = pl.Email
			d.Telefono = pl.Telefono
			if pl.Estado != "" {
				d.Estado = pl.Estado
			}
			if err := p.store.UpdateDocente(ctx, d); err != nil {
				return classifyStoreErr("update docente", err)
			}
			return job.Success()

		case job.OpDelete:
			if err := p.store.DeleteDocente(ctx, pl.CI); err != nil {
				if isNotFound(err) {
					return job.NotFoundSkip(fmt.Sprintf("docente %s does not exist", pl.CI))
				}
				return classifyStoreErr("delete docente", err)
			}
			return job.Success()

		default:
			return job.InvalidSkip(fmt.Sprintf("operation %s not supported for Docente", j.Operation))
		}
	})
}

// ── Estudiante ────────────────────────────────────────────────────

type estudianteProcessor struct {
	store  academic.Store
	logger *slog.Logger
}

type estudiantePayload struct {
	Registro     string `json:"registro"`
	CI           string `json:"ci"`
	Nombre       string `json:"nombre"`
	Email        string `json:"email"`
	Telefono     string `json:"telefono"`
	Direccion    string `json:"direccion"`
	Estado       string `json:"estado"`
	PasswordHash string `json:"passwordHash"`
}

func (p *estudianteProcessor) Process(ctx context.Context, j *job.Job) job.Result {
	return guarded(ctx, p.store, j, func(ctx context.Context) job.Result {
		var pl estudiantePayload
		if err := json.Unmarshal(j.Payload, &pl); err != nil {
			return job.InvalidSkip("Estudiante payload is not valid JSON")
		}
		if strings.TrimSpace(pl.Registro) == "" {
			return job.InvalidSkip("Estudiante requires a registro")
		}

		switch j.Operation {
		case job.OpCreate:
			if _, err := p.store.EstudianteByRegistro(ctx, pl.Registro); err == nil {
				return job.NotFoundSkip(fmt.Sprintf("estudiante %s already exists", pl.Registro))
			} else if !isNotFound(err) {
				return classifyStoreErr("estudiante lookup", err)
			}
			estado := pl.Estado
			if estado == "" {
				estado = "ACTIVO"
			}
			e := &academic.Estudiante{
				Registro: pl.Registro, CI: pl.CI, Nombre: pl.Nombre,
				Email: pl.Email, Telefono: pl.Telefono, Direccion: pl.Direccion,
				Estado: estado, PasswordHash: pl.PasswordHash,
			}
			if err := p.store.CreateEstudiante(ctx, e); err != nil {
				return classifyStoreErr("create estudiante", err)
			}
			return job.Success()

		case job.OpUpdate:
			e, err := p.store.EstudianteByRegistro(ctx, pl.Registro)
			if err != nil {
				if isNotFound(err) {
					return job.NotFoundSkip(fmt.Sprintf("estudiante %s does not exist", pl.Registro))
				}
				return classifyStoreErr("estudiante lookup", err)
			}
			e.CI = pl.CI
			e.Nombre = pl.Nombre
			e.Email = pl.Email
			e.Telefono = pl.Telefono
			e.Direccion = pl.Direccion
			if pl.Estado != "" {
				e.Estado = pl.Estado
			}
			if pl.PasswordHash != "" {
				e.PasswordHash = pl.PasswordHash
			}
			if err := p.store.UpdateEstudiante(ctx, e); err != nil {
				return classifyStoreErr("update estudiante", err)
			}
			return job.Success()

		case job.OpDelete:
			if err := p.store.DeleteEstudiante(ctx, pl.Registro); err != nil {
				if isNotFound(err) {
					return job.NotFoundSkip(fmt.Sprintf("estudiante %s does not exist", pl.Registro))
				}
				return classifyStoreErr("delete estudiante", err)
			}
			return job.Success()

		default:
			return job.InvalidSkip(fmt.Sprintf("operation %s not supported for Estudiante", j.Operation))
		}
	})
}

// ── PeriodoAcademico ──────────────────────────────────────────────

type periodoProcessor struct {
	store  academic.Store
	logger *slog.Logger
}

type periodoPayload struct {
	Gestion     string `json:"gestion"`
	FechaInicio string `json:"fechaInicio"`
	FechaFin    string `json:"fechaFin"`
	Estado      string `json:"estado"`
}

func (p *periodoProcessor) Process(ctx context.Context, j *job.Job) job.Result {
	return guarded(ctx, p.store, j, func(ctx context.Context) job.Result {
		var pl periodoPayload
		if err := json.Unmarshal(j.Payload, &pl); err != nil {
			return job.InvalidSkip("PeriodoAcademico payload is not valid JSON")
		}
		if strings.TrimSpace(pl.Gestion) == "" {
			return job.InvalidSkip("PeriodoAcademico requires a gestion")
		}

		switch j.Operation {
		case job.OpCreate, job.OpUpdate:
			inicio, fin, res, ok := parsePeriodoDates(pl)
			if !ok {
				return res
			}

			if j.Operation == job.OpCreate {
				if _, err := p.store.PeriodoByGestion(ctx, pl.Gestion); err == nil {
					return job.NotFoundSkip(fmt.Sprintf("periodo %s already exists", pl.Gestion))
				} else if !isNotFound(err) {
					return classifyStoreErr("periodo lookup", err)
				}
				estado := pl.Estado
				if estado == "" {
					estado = "ABIERTO"
				}
				per := &academic.PeriodoAcademico{Gestion: pl.Gestion, FechaInicio: inicio, FechaFin: fin, Estado: estado}
				if err := p.store.CreatePeriodo(ctx, per); err != nil {
					return classifyStoreErr("create periodo", err)
				}
				return job.Success()
			}

			per, err := p.store.PeriodoByGestion(ctx, pl.Gestion)
			if err != nil {
				if isNotFound(err) {
					return job.NotFoundSkip(fmt.Sprintf("periodo %s does not exist", pl.Gestion))
				}
				return classifyStoreErr("periodo lookup", err)
			}
			per.FechaInicio = inicio
			per.FechaFin = fin
			if pl.Estado != "" {
				per.Estado = pl.Estado
			}
			if err := p.store.UpdatePeriodo(ctx, per); err != nil {
				return classifyStoreErr("update periodo", err)
			}
			return job.Success()

		case job.OpDelete:
			if err := p.store.DeletePeriodo(ctx, pl.Gestion); err != nil {
				if isNotFound(err) {
					return job.NotFoundSkip(fmt.Sprintf("periodo %s does not exist", pl.Gestion))
				}
				return classifyStoreErr("delete periodo", err)
			}
			return job.Success()

		default:
			return job.InvalidSkip(fmt.Sprintf("operation %s not supported for PeriodoAcademico", j.Operation))
		}
	})
}

// ── PlanDeEstudio ─────────────────────────────────────────────────

type planProcessor struct {
	store  academic.Store
	logger *slog.Logger
}

type planPayload struct {
	Codigo string `json:"codigo"`
	Nombre string `json:"nombre"`
}

func (p *planProcessor) Process(ctx context.Context, j *job.Job) job.Result {
	return guarded(ctx, p.store, j, func(ctx context.Context) job.Result {
		var pl planPayload
		if err := json.Unmarshal(j.Payload, &pl); err != nil {
			return job.InvalidSkip("PlanDeEstudio payload is not valid JSON")
		}
		if strings.TrimSpace(pl.Codigo) == "" {
			return job.InvalidSkip("PlanDeEstudio requires a codigo")
		}

		switch j.Operation {
		case job.OpCreate:
			if _, err := p.store.PlanByCodigo(ctx, pl.Codigo); err == nil {
				return job.NotFoundSkip(fmt.Sprintf("plan %s already exists", pl.Codigo))
			} else if !isNotFound(err) {
				return classifyStoreErr("plan lookup", err)
			}
			plan := &academic.PlanDeEstudio{Codigo: pl.Codigo, Nombre: pl.Nombre}
			if err := p.store.CreatePlan(ctx, plan); err != nil {
				return classifyStoreErr("create plan", err)
			}
			return job.Success()

		case job.OpUpdate:
			plan, err := p.store.PlanByCodigo(ctx, pl.Codigo)
			if err != nil {
				if isNotFound(err) {
					return job.NotFoundSkip(fmt.Sprintf("plan %s does not exist", pl.Codigo))
				}
				return classifyStoreErr("plan lookup", err)
			}
			plan.Nombre = pl.Nombre
			if err := p.store.UpdatePlan(ctx, plan); err != nil {
				return classifyStoreErr("update plan", err)
			}
			return job.Success()

		case job.OpDelete:
			if err := p.store.DeletePlan(ctx, pl.Codigo); err != nil {
				if isNotFound(err) {
					return job.NotFoundSkip(fmt.Sprintf("plan %s does not exist", pl.Codigo))
				}
				return classifyStoreErr("delete plan", err)
			}
			return job.Success()

		default:
			return job.InvalidSkip(fmt.Sprintf("operation %s not supported for PlanDeEstudio", j.Operation))
		}
	})
}

// ── GrupoMateria ──────────────────────────────────────────────────

type grupoProcessor struct {
	store  academic.Store
	logger *slog.Logger
}

type grupoPayload struct {
	MateriaCodigo string `json:"materiaCodigo"`
	Grupo         string `json:"grupo"`
	PeriodoID     int64  `json:"periodoId"`
	Gestion       string `json:"gestion"`
	Cupo          int    `json:"cupo"`
}

// resolvePeriodo accepts either a direct period id or a gestion label.
func (p *grupoProcessor) resolvePeriodo(ctx context.Context, pl *grupoPayload) (int64, job.Result, bool) {
	if pl.PeriodoID > 0 {
		return pl.PeriodoID, job.Result{}, true
	}
	if strings.TrimSpace(pl.Gestion) == "" {
		return 0, job.InvalidSkip("GrupoMateria requires periodoId or gestion"), false
	}
	per, err := p.store.PeriodoByGestion(ctx, pl.Gestion)
	if err != nil {
		if isNotFound(err) {
			return 0, job.NotFoundSkip(fmt.Sprintf("periodo %s does not exist", pl.Gestion)), false
		}
		return 0, classifyStoreErr("periodo lookup", err), false
	}
	return per.ID, job.Result{}, true
}

func (p *grupoProcessor) Process(ctx context.Context, j *job.Job) job.Result {
	return guarded(ctx, p.store, j, func(ctx context.Context) job.Result {
		var pl grupoPayload
		if err := json.Unmarshal(j.Payload, &pl); err != nil {
			return job.InvalidSkip("GrupoMateria payload is not valid JSON")
		}
		if strings.TrimSpace(pl.MateriaCodigo) == "" || strings.TrimSpace(pl.Grupo) == "" {
			return job.InvalidSkip("GrupoMateria requires materiaCodigo and grupo")
		}
		periodoID, res, ok := p.resolvePeriodo(ctx, &pl)
		if !ok {
			return res
		}

		switch j.Operation {
		case job.OpCreate:
			materia, err := p.store.MateriaByCodigo(ctx, pl.MateriaCodigo)
			if err != nil {
				if isNotFound(err) {
					return job.NotFoundSkip(fmt.Sprintf("materia %s does not exist", pl.MateriaCodigo))
				}
				return classifyStoreErr("materia lookup", err)
			}
			if _, err := p.store.GrupoMateria(ctx, pl.MateriaCodigo, pl.Grupo, periodoID); err == nil {
				return job.NotFoundSkip(fmt.Sprintf("grupo %s-%s already exists", pl.MateriaCodigo, pl.Grupo))
			} else if !isNotFound(err) {
				return classifyStoreErr("grupo lookup", err)
			}
			g := &academic.GrupoMateria{Grupo: pl.Grupo, Cupo: pl.Cupo, MateriaID: materia.ID, PeriodoID: periodoID}
			if err := p.store.CreateGrupoMateria(ctx, g); err != nil {
				return classifyStoreErr("create grupo", err)
			}
			return job.Success()

		case job.OpUpdate:
			g, err := p.store.GrupoMateria(ctx, pl.MateriaCodigo, pl.Grupo, periodoID)
			if err != nil {
				if isNotFound(err) {
					return job.NotFoundSkip(fmt.Sprintf("grupo %s-%s does not exist", pl.MateriaCodigo, pl.Grupo))
				}
				return classifyStoreErr("grupo lookup", err)
			}
			g.Cupo = pl.Cupo
			if err := p.store.UpdateGrupoMateria(ctx, g); err != nil {
				return classifyStoreErr("update grupo", err)
			}
			return job.Success()

		case job.OpDelete:
			g, err := p.store.GrupoMateria(ctx, pl.MateriaCodigo, pl.Grupo, periodoID)
			if err != nil {
				if isNotFound(err) {
					return job.NotFoundSkip(fmt.Sprintf("grupo %s-%s does not exist", pl.MateriaCodigo, pl.Grupo))
				}
				return classifyStoreErr("grupo lookup", err)
			}
			if err := p.store.DeleteGrupoMateria(ctx, g.ID); err != nil {
				return classifyStoreErr("delete grupo", err)
			}
			return job.Success()

		default:
			return job.InvalidSkip(fmt.Sprintf("operation %s not supported for GrupoMateria", j.Operation))
		}
	})
}

func isNotFound(err error) bool {
	return errors.Is(err, academic.ErrNotFound)
}

// parsePeriodoDates parses the term boundaries, accepting RFC 3339 or a
// bare date, and validates their order.
func parsePeriodoDates(pl periodoPayload) (inicio, fin time.Time, res job.Result, ok bool) {
	var err error
	if inicio, err = parseDate(pl.FechaInicio); err != nil {
		return inicio, fin, job.InvalidSkip("PeriodoAcademico fechaInicio is not a valid date"), false
	}
	if fin, err = parseDate(pl.FechaFin); err != nil {
		return inicio, fin, job.InvalidSkip("PeriodoAcademico fechaFin is not a valid date"), false
	}
	if fin.Before(inicio) {
		return inicio, fin, job.InvalidSkip("PeriodoAcademico fechaFin precedes fechaInicio"), false
	}
	return inicio, fin, job.Result{}, true
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
