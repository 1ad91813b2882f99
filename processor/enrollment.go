package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/siga-labs/txq/academic"
	"github.com/siga-labs/txq/job"
)

// ── Inscripcion ───────────────────────────────────────────────────

// inscripcionProcessor resolves a pending enrollment in one store
// transaction: every requested (materia, grupo) pair with seats left gets
// a detail row and a seat decrement, then the enrollment state is
// computed from how many were confirmed.
type inscripcionProcessor struct {
	store  academic.Store
	logger *slog.Logger
}

type materiaGrupo struct {
	MateriaCodigo string `json:"materiaCodigo"`
	Grupo         string `json:"grupo"`
}

type inscripcionPayload struct {
	Registro      string         `json:"registro"`
	PeriodoID     int64          `json:"periodoId"`
	InscripcionID int64          `json:"inscripcionId"`
	Materias      []materiaGrupo `json:"materias"`
}

func (p *inscripcionProcessor) Process(ctx context.Context, j *job.Job) job.Result {
	return guarded(ctx, p.store, j, func(ctx context.Context) job.Result {
		var pl inscripcionPayload
		if err := json.Unmarshal(j.Payload, &pl); err != nil {
			return job.InvalidSkip("Inscripcion payload is not valid JSON")
		}
		if j.Operation != job.OpCreate {
			return job.InvalidSkip(fmt.Sprintf("operation %s not supported for Inscripcion", j.Operation))
		}
		if pl.InscripcionID <= 0 || strings.TrimSpace(pl.Registro) == "" || pl.PeriodoID <= 0 {
			return job.InvalidSkip("Inscripcion requires inscripcionId, registro and periodoId")
		}

		var res job.Result
		err := p.store.RunInTx(ctx, func(ctx context.Context, tx academic.Store) error {
			res = p.resolve(ctx, tx, j, &pl)
			if res.IsRetry() {
				return res.Err
			}
			return nil
		})
		if err != nil && !res.IsRetry() {
			return job.RetryableFailure(fmt.Errorf("txq/processor: inscripcion tx: %w", err))
		}
		return res
	})
}

func (p *inscripcionProcessor) resolve(ctx context.Context, tx academic.Store, j *job.Job, pl *inscripcionPayload) job.Result {
	insc, err := tx.InscripcionByID(ctx, pl.InscripcionID)
	if err != nil {
		if isNotFound(err) {
			return job.NotFoundSkip(fmt.Sprintf("inscripcion %d does not exist", pl.InscripcionID))
		}
		return job.RetryableFailure(fmt.Errorf("txq/processor: load inscripcion: %w", err))
	}

	// A missing student rejects the enrollment rather than skipping the
	// job: the submitting service needs the terminal state persisted.
	if _, err := tx.EstudianteByRegistro(ctx, pl.Registro); err != nil {
		if !isNotFound(err) {
			return job.RetryableFailure(fmt.Errorf("txq/processor: load estudiante: %w", err))
		}
		insc.Estado = academic.EnrollmentRejected
		insc.Fecha = time.Now().UTC()
		if err := tx.UpdateInscripcion(ctx, insc); err != nil {
			return job.RetryableFailure(fmt.Errorf("txq/processor: reject inscripcion: %w", err))
		}
		p.logger.Warn("enrollment rejected, student not found",
			slog.String("job_id", j.ID.String()),
			slog.String("registro", pl.Registro))
		return job.Success()
	}

	confirmed := 0
	for _, mg := range pl.Materias {
		grupo, err := tx.GrupoMateria(ctx, mg.MateriaCodigo, mg.Grupo, pl.PeriodoID)
		if err != nil {
			if isNotFound(err) {
				p.logger.Warn("group not found",
					slog.String("materia", mg.MateriaCodigo),
					slog.String("grupo", mg.Grupo))
				continue
			}
			return job.RetryableFailure(fmt.Errorf("txq/processor: load grupo: %w", err))
		}
		if grupo.Cupo <= 0 {
			p.logger.Warn("group full",
				slog.String("materia", mg.MateriaCodigo),
				slog.String("grupo", mg.Grupo))
			continue
		}
		if hasDetalle(insc, grupo.ID) {
			continue
		}

		det := &academic.DetalleInscripcion{
			Codigo:         fmt.Sprintf("%s-%s-%d", mg.MateriaCodigo, mg.Grupo, insc.ID),
			Estado:         academic.DetailEnrolled,
			InscripcionID:  insc.ID,
			GrupoMateriaID: grupo.ID,
		}
		if err := tx.CreateDetalle(ctx, det); err != nil {
			return job.RetryableFailure(fmt.Errorf("txq/processor: create detalle: %w", err))
		}
		grupo.Cupo--
		if err := tx.UpdateGrupoMateria(ctx, grupo); err != nil {
			return job.RetryableFailure(fmt.Errorf("txq/processor: decrement cupo: %w", err))
		}
		confirmed++
	}

	switch {
	case confirmed == 0:
		insc.Estado = academic.EnrollmentRejected
	case confirmed < len(pl.Materias):
		insc.Estado = academic.EnrollmentPartial
	default:
		insc.Estado = academic.EnrollmentConfirmed
	}
	insc.Fecha = time.Now().UTC()
	if err := tx.UpdateInscripcion(ctx, insc); err != nil {
		return job.RetryableFailure(fmt.Errorf("txq/processor: update inscripcion: %w", err))
	}

	p.logger.Info("enrollment resolved",
		slog.String("job_id", j.ID.String()),
		slog.Int64("inscripcion_id", insc.ID),
		slog.String("estado", insc.Estado),
		slog.Int("confirmed", confirmed),
		slog.Int("requested", len(pl.Materias)))
	return job.Success()
}

func hasDetalle(insc *academic.Inscripcion, grupoID int64) bool {
	for _, d := range insc.Detalles {
		if d.GrupoMateriaID == grupoID {
			return true
		}
	}
	return false
}

// ── DetalleInscripcion ────────────────────────────────────────────

// detalleProcessor manages single enrollment detail rows addressed by the
// quad (registro, periodo, materia, grupo).
type detalleProcessor struct {
	store  academic.Store
	logger *slog.Logger
}

type detalleKey struct {
	Registro      string `json:"registro"`
	PeriodoID     int64  `json:"periodoId"`
	MateriaCodigo string `json:"materiaCodigo"`
	Grupo         string `json:"grupo"`
}

func (k detalleKey) valid() bool {
	return strings.TrimSpace(k.Registro) != "" && k.PeriodoID > 0 &&
		strings.TrimSpace(k.MateriaCodigo) != "" && strings.TrimSpace(k.Grupo) != ""
}

type detallePayload struct {
	detalleKey
	AutoCrearInscripcion bool `json:"autoCrearInscripcion"`

	// UPDATE addresses the current row with Clave and applies Update.
	Clave  *detalleKey    `json:"clave"`
	Update *detalleUpdate `json:"update"`
}

type detalleUpdate struct {
	NuevoGrupo  string `json:"nuevoGrupo"`
	NuevoEstado string `json:"nuevoEstado"`
}

func (p *detalleProcessor) Process(ctx context.Context, j *job.Job) job.Result {
	return guarded(ctx, p.store, j, func(ctx context.Context) job.Result {
		var pl detallePayload
		if err := json.Unmarshal(j.Payload, &pl); err != nil {
			return job.InvalidSkip("DetalleInscripcion payload is not valid JSON")
		}

		switch j.Operation {
		case job.OpCreate:
			return p.create(ctx, &pl)
		case job.OpUpdate:
			return p.update(ctx, &pl)
		case job.OpDelete:
			return p.delete(ctx, pl.detalleKey)
		default:
			return job.InvalidSkip(fmt.Sprintf("operation %s not supported for DetalleInscripcion", j.Operation))
		}
	})
}

func (p *detalleProcessor) create(ctx context.Context, pl *detallePayload) job.Result {
	if !pl.valid() {
		return job.InvalidSkip("DetalleInscripcion requires registro, periodoId, materiaCodigo and grupo")
	}

	insc, res, ok := p.resolveInscripcion(ctx, pl.detalleKey, pl.AutoCrearInscripcion)
	if !ok {
		return res
	}
	grupo, res, ok := p.resolveGrupo(ctx, pl.detalleKey)
	if !ok {
		return res
	}

	if _, err := p.store.DetalleFor(ctx, insc.ID, grupo.ID); err == nil {
		return job.NotFoundSkip("detalle already exists")
	} else if !isNotFound(err) {
		return classifyStoreErr("detalle lookup", err)
	}

	det := &academic.DetalleInscripcion{
		Codigo:         fmt.Sprintf("%d-%d", insc.ID, grupo.ID),
		Estado:         academic.DetailEnrolled,
		InscripcionID:  insc.ID,
		GrupoMateriaID: grupo.ID,
	}
	if err := p.store.CreateDetalle(ctx, det); err != nil {
		return classifyStoreErr("create detalle", err)
	}
	return job.Success()
}

func (p *detalleProcessor) update(ctx context.Context, pl *detallePayload) job.Result {
	if pl.Clave == nil || pl.Update == nil {
		return job.InvalidSkip("DetalleInscripcion UPDATE requires clave and update")
	}
	if !pl.Clave.valid() {
		return job.InvalidSkip("DetalleInscripcion clave is incomplete")
	}
	if pl.Update.NuevoGrupo == "" && pl.Update.NuevoEstado == "" {
		return job.InvalidSkip("DetalleInscripcion update requires nuevoGrupo or nuevoEstado")
	}

	insc, res, ok := p.resolveInscripcion(ctx, *pl.Clave, false)
	if !ok {
		return res
	}
	grupo, res, ok := p.resolveGrupo(ctx, *pl.Clave)
	if !ok {
		return res
	}

	det, err := p.store.DetalleFor(ctx, insc.ID, grupo.ID)
	if err != nil {
		if isNotFound(err) {
			return job.NotFoundSkip("detalle does not exist")
		}
		return classifyStoreErr("detalle lookup", err)
	}

	changed := false
	if pl.Update.NuevoGrupo != "" {
		target := *pl.Clave
		target.Grupo = pl.Update.NuevoGrupo
		nuevo, res, ok := p.resolveGrupo(ctx, target)
		if !ok {
			return res
		}
		if _, err := p.store.DetalleFor(ctx, insc.ID, nuevo.ID); err == nil {
			return job.NotFoundSkip("group change would duplicate a detalle")
		} else if !isNotFound(err) {
			return classifyStoreErr("detalle lookup", err)
		}
		det.GrupoMateriaID = nuevo.ID
		det.Codigo = fmt.Sprintf("%d-%d", insc.ID, nuevo.ID)
		changed = true
	}
	if pl.Update.NuevoEstado != "" && !strings.EqualFold(det.Estado, pl.Update.NuevoEstado) {
		det.Estado = pl.Update.NuevoEstado
		changed = true
	}
	if !changed {
		return job.NotFoundSkip("update produced no effective change")
	}

	if err := p.store.UpdateDetalle(ctx, det); err != nil {
		return classifyStoreErr("update detalle", err)
	}
	return job.Success()
}

func (p *detalleProcessor) delete(ctx context.Context, key detalleKey) job.Result {
	if !key.valid() {
		return job.InvalidSkip("DetalleInscripcion requires registro, periodoId, materiaCodigo and grupo")
	}

	insc, res, ok := p.resolveInscripcion(ctx, key, false)
	if !ok {
		return res
	}
	grupo, res, ok := p.resolveGrupo(ctx, key)
	if !ok {
		return res
	}

	det, err := p.store.DetalleFor(ctx, insc.ID, grupo.ID)
	if err != nil {
		if isNotFound(err) {
			return job.NotFoundSkip("nothing to delete")
		}
		return classifyStoreErr("detalle lookup", err)
	}
	if err := p.store.DeleteDetalle(ctx, det.ID); err != nil {
		return classifyStoreErr("delete detalle", err)
	}
	return job.Success()
}

func (p *detalleProcessor) resolveInscripcion(ctx context.Context, key detalleKey, autoCreate bool) (*academic.Inscripcion, job.Result, bool) {
	insc, err := p.store.InscripcionFor(ctx, key.Registro, key.PeriodoID)
	if err == nil {
		return insc, job.Result{}, true
	}
	if !isNotFound(err) {
		return nil, classifyStoreErr("inscripcion lookup", err), false
	}
	if !autoCreate {
		return nil, job.NotFoundSkip("inscripcion does not exist"), false
	}

	est, err := p.store.EstudianteByRegistro(ctx, key.Registro)
	if err != nil {
		if isNotFound(err) {
			return nil, job.NotFoundSkip(fmt.Sprintf("estudiante %s does not exist", key.Registro)), false
		}
		return nil, classifyStoreErr("estudiante lookup", err), false
	}

	insc = &academic.Inscripcion{
		EstudianteID: est.ID,
		PeriodoID:    key.PeriodoID,
		Estado:       academic.EnrollmentActive,
		Fecha:        time.Now().UTC(),
	}
	if err := p.store.CreateInscripcion(ctx, insc); err != nil {
		return nil, classifyStoreErr("create inscripcion", err), false
	}
	p.logger.Info("auto-created inscripcion",
		slog.String("registro", key.Registro),
		slog.Int64("periodo_id", key.PeriodoID))
	return insc, job.Result{}, true
}

func (p *detalleProcessor) resolveGrupo(ctx context.Context, key detalleKey) (*academic.GrupoMateria, job.Result, bool) {
	g, err := p.store.GrupoMateria(ctx, key.MateriaCodigo, key.Grupo, key.PeriodoID)
	if err != nil {
		if isNotFound(err) {
			return nil, job.NotFoundSkip(fmt.Sprintf("grupo %s-%s does not exist", key.MateriaCodigo, key.Grupo)), false
		}
		return nil, classifyStoreErr("grupo lookup", err), false
	}
	return g, job.Result{}, true
}
