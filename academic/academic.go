// Package academic holds the durable entity model of the records system:
// classrooms, subjects, teachers, students, academic periods, study plans,
// subject groups with seat counts, and enrollments with their detail rows.
// The Store contract is defined here; a Bun/PostgreSQL backend and an
// in-memory backend implement it.
package academic

import (
	"errors"
	"time"

	"github.com/uptrace/bun"
)

// Sentinel errors returned by Store implementations. Backends map their
// driver-level failures onto these so processors can classify outcomes
// without knowing the backend.
var (
	// ErrNotFound means no record matches the natural key.
	ErrNotFound = errors.New("txq/academic: record not found")
	// ErrDuplicate means an insert collided with a unique constraint.
	ErrDuplicate = errors.New("txq/academic: duplicate natural key")
	// ErrForeignKey means the operation violates a referential constraint,
	// typically a delete of a record that still has dependents.
	ErrForeignKey = errors.New("txq/academic: foreign key constraint")
)

// Enrollment lifecycle states. An enrollment is created PENDIENTE by the
// submitting service and resolved by the Inscripcion processor.
const (
	EnrollmentPending   = "PENDIENTE"
	EnrollmentActive    = "ACTIVA"
	EnrollmentConfirmed = "CONFIRMADA"
	EnrollmentPartial   = "PARCIAL"
	EnrollmentRejected  = "RECHAZADA"
)

// Detail row states.
const (
	DetailEnrolled  = "INSCRITO"
	DetailWithdrawn = "RETIRADO"
)

// Aula is a classroom, keyed by its Codigo.
type Aula struct {
	bun.BaseModel `bun:"table:aulas"`

	ID        int64  `bun:"id,pk,autoincrement" json:"id"`
	Codigo    string `bun:"codigo,notnull,unique" json:"codigo"`
	Capacidad int    `bun:"capacidad,notnull" json:"capacidad"`
	Ubicacion string `bun:"ubicacion" json:"ubicacion"`
}

// Nivel is a curriculum level, keyed by its Numero.
type Nivel struct {
	bun.BaseModel `bun:"table:niveles"`

	ID     int64  `bun:"id,pk,autoincrement" json:"id"`
	Numero int    `bun:"numero,notnull,unique" json:"numero"`
	Nombre string `bun:"nombre,notnull" json:"nombre"`
}

// Materia is a subject, keyed by its Codigo and attached to a Nivel.
type Materia struct {
	bun.BaseModel `bun:"table:materias"`

	ID       int64  `bun:"id,pk,autoincrement" json:"id"`
	Codigo   string `bun:"codigo,notnull,unique" json:"codigo"`
	Nombre   string `bun:"nombre,notnull" json:"nombre"`
	Creditos int    `bun:"creditos,notnull" json:"creditos"`
	NivelID  int64  `bun:"nivel_id,notnull" json:"nivelId"`
}

// Docente is a teacher, keyed by national id (CI).
type Docente struct {
	bun.BaseModel `bun:"table:docentes"`

	ID       int64  `bun:"id,pk,autoincrement" json:"id"`
	CI       string `bun:"ci,notnull,unique" json:"ci"`
	Nombre   string `bun:"nombre,notnull" json:"nombre"`
	Email    string `bun:"email" json:"email"`
	Telefono string `bun:"telefono" json:"telefono"`
	Estado   string `bun:"estado,notnull,default:'ACTIVO'" json:"estado"`
}

// Estudiante is a student, keyed by registration number.
type Estudiante struct {
	bun.BaseModel `bun:"table:estudiantes"`

	ID           int64  `bun:"id,pk,autoincrement" json:"id"`
	Registro     string `bun:"registro,notnull,unique" json:"registro"`
	CI           string `bun:"ci" json:"ci"`
	Nombre       string `bun:"nombre,notnull" json:"nombre"`
	Email        string `bun:"email" json:"email"`
	Telefono     string `bun:"telefono" json:"telefono"`
	Direccion    string `bun:"direccion" json:"direccion"`
	Estado       string `bun:"estado,notnull,default:'ACTIVO'" json:"estado"`
	PasswordHash string `bun:"password_hash" json:"-"`
}

// PeriodoAcademico is a term, keyed by its Gestion label ("2026-1").
type PeriodoAcademico struct {
	bun.BaseModel `bun:"table:periodos_academicos"`

	ID          int64     `bun:"id,pk,autoincrement" json:"id"`
	Gestion     string    `bun:"gestion,notnull,unique" json:"gestion"`
	FechaInicio time.Time `bun:"fecha_inicio,notnull" json:"fechaInicio"`
	FechaFin    time.Time `bun:"fecha_fin,notnull" json:"fechaFin"`
	Estado      string    `bun:"estado,notnull,default:'ABIERTO'" json:"estado"`
}

// PlanDeEstudio is a study plan, keyed by its Codigo.
type PlanDeEstudio struct {
	bun.BaseModel `bun:"table:planes_de_estudio"`

	ID     int64  `bun:"id,pk,autoincrement" json:"id"`
	Codigo string `bun:"codigo,notnull,unique" json:"codigo"`
	Nombre string `bun:"nombre,notnull" json:"nombre"`
}

// GrupoMateria is one group (section) of a subject offered in a period,
// carrying the remaining seat count. The natural key is
// (materia, grupo, periodo).
type GrupoMateria struct {
	bun.BaseModel `bun:"table:grupos_materias"`

	ID        int64  `bun:"id,pk,autoincrement" json:"id"`
	Grupo     string `bun:"grupo,notnull" json:"grupo"`
	Cupo      int    `bun:"cupo,notnull" json:"cupo"`
	MateriaID int64  `bun:"materia_id,notnull" json:"materiaId"`
	PeriodoID int64  `bun:"periodo_id,notnull" json:"periodoId"`

	Materia *Materia `bun:"rel:belongs-to,join:materia_id=id" json:"materia,omitempty"`
}

// Inscripcion is a student's enrollment for one period.
type Inscripcion struct {
	bun.BaseModel `bun:"table:inscripciones"`

	ID           int64     `bun:"id,pk,autoincrement" json:"id"`
	EstudianteID int64     `bun:"estudiante_id,notnull" json:"estudianteId"`
	PeriodoID    int64     `bun:"periodo_id,notnull" json:"periodoId"`
	Estado       string    `bun:"estado,notnull,default:'PENDIENTE'" json:"estado"`
	Fecha        time.Time `bun:"fecha,notnull" json:"fecha"`

	Detalles []*DetalleInscripcion `bun:"rel:has-many,join:id=inscripcion_id" json:"detalles,omitempty"`
}

// DetalleInscripcion links an enrollment to one subject group. The pair
// (inscripcion, grupo) is unique.
type DetalleInscripcion struct {
	bun.BaseModel `bun:"table:detalles_inscripcion"`

	ID             int64  `bun:"id,pk,autoincrement" json:"id"`
	Codigo         string `bun:"codigo,notnull" json:"codigo"`
	Estado         string `bun:"estado,notnull,default:'INSCRITO'" json:"estado"`
	InscripcionID  int64  `bun:"inscripcion_id,notnull" json:"inscripcionId"`
	GrupoMateriaID int64  `bun:"grupo_materia_id,notnull" json:"grupoMateriaId"`
}

// ProcessedMessage records that a transaction id was applied, one row per
// job. The unique primary key is what makes processors idempotent across
// redeliveries.
type ProcessedMessage struct {
	bun.BaseModel `bun:"table:processed_messages"`

	MessageID   string    `bun:"message_id,pk" json:"messageId"`
	ProcessedAt time.Time `bun:"processed_at,notnull" json:"processedAt"`
}
