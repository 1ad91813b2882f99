package academic

import "context"

// Store is the persistence contract the entity processors run against.
// Lookups are by natural key and return ErrNotFound when nothing matches.
// Creates collide with ErrDuplicate, deletes of referenced records fail
// with ErrForeignKey. Everything else a backend returns is treated as
// transient by callers.
type Store interface {
	// IsProcessed reports whether the transaction id was already applied.
	IsProcessed(ctx context.Context, messageID string) (bool, error)
	// MarkProcessed records the transaction id. Marking twice is a no-op.
	MarkProcessed(ctx context.Context, messageID string) error

	AulaByCodigo(ctx context.Context, codigo string) (*Aula, error)
	CreateAula(ctx context.Context, a *Aula) error
	UpdateAula(ctx context.Context, a *Aula) error
	DeleteAula(ctx context.Context, codigo string) error

	NivelByNumero(ctx context.Context, numero int) (*Nivel, error)
	CreateNivel(ctx context.Context, n *Nivel) error
	UpdateNivel(ctx context.Context, n *Nivel) error
	DeleteNivel(ctx context.Context, numero int) error

	MateriaByCodigo(ctx context.Context, codigo string) (*Materia, error)
	CreateMateria(ctx context.Context, m *Materia) error
	UpdateMateria(ctx context.Context, m *Materia) error
	DeleteMateria(ctx context.Context, codigo string) error

	DocenteByCI(ctx context.Context, ci string) (*Docente, error)
	CreateDocente(ctx context.Context, d *Docente) error
	UpdateDocente(ctx context.Context, d *Docente) error
	DeleteDocente(ctx context.Context, ci string) error

	EstudianteByRegistro(ctx context.Context, registro string) (*Estudiante, error)
	CreateEstudiante(ctx context.Context, e *Estudiante) error
	UpdateEstudiante(ctx context.Context, e *Estudiante) error
	DeleteEstudiante(ctx context.Context, registro string) error

	PeriodoByGestion(ctx context.Context, gestion string) (*PeriodoAcademico, error)
	CreatePeriodo(ctx context.Context, p *PeriodoAcademico) error
	UpdatePeriodo(ctx context.Context, p *PeriodoAcademico) error
	DeletePeriodo(ctx context.Context, gestion string) error

	PlanByCodigo(ctx context.Context, codigo string) (*PlanDeEstudio, error)
	CreatePlan(ctx context.Context, p *PlanDeEstudio) error
	UpdatePlan(ctx context.Context, p *PlanDeEstudio) error
	DeletePlan(ctx context.Context, codigo string) error

	// GrupoMateria resolves a group by subject code, group label and period.
	GrupoMateria(ctx context.Context, materiaCodigo, grupo string, periodoID int64) (*GrupoMateria, error)
	CreateGrupoMateria(ctx context.Context, g *GrupoMateria) error
	UpdateGrupoMateria(ctx context.Context, g *GrupoMateria) error
	DeleteGrupoMateria(ctx context.Context, id int64) error

	// InscripcionByID loads an enrollment together with its detail rows.
	InscripcionByID(ctx context.Context, id int64) (*Inscripcion, error)
	// InscripcionFor resolves the enrollment of a student (by registro)
	// in a period.
	InscripcionFor(ctx context.Context, registro string, periodoID int64) (*Inscripcion, error)
	CreateInscripcion(ctx context.Context, i *Inscripcion) error
	UpdateInscripcion(ctx context.Context, i *Inscripcion) error
	DeleteInscripcion(ctx context.Context, id int64) error

	DetalleFor(ctx context.Context, inscripcionID, grupoMateriaID int64) (*DetalleInscripcion, error)
	CreateDetalle(ctx context.Context, d *DetalleInscripcion) error
	UpdateDetalle(ctx context.Context, d *DetalleInscripcion) error
	DeleteDetalle(ctx context.Context, id int64) error

	// RunInTx runs fn inside a single transaction. The Store passed to fn
	// sees uncommitted writes; any error rolls everything back. Nested
	// calls join the enclosing transaction.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}
