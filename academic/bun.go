package academic

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var _ Store = (*Bun)(nil)

// Bun is a Bun ORM implementation of Store using PostgreSQL dialect.
// The caller owns the *bun.DB lifecycle; Bun never closes it.
type Bun struct {
	db     bun.IDB
	logger *slog.Logger
}

// BunOption configures the Bun store.
type BunOption func(*Bun)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) BunOption {
	return func(s *Bun) { s.logger = logger }
}

// NewBun creates a Bun-backed Store over db.
func NewBun(db *bun.DB, opts ...BunOption) *Bun {
	s := &Bun{db: db, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate applies the embedded SQL migration files in filename order,
// tracking applied files in txq_migrations.
func (s *Bun) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS txq_migrations (
			filename TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("txq/academic: create migrations table: %w", err)
	}

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("txq/academic: read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		var applied bool
		err = s.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM txq_migrations WHERE filename = ?)`,
			entry.Name(),
		).Scan(&applied)
		if err != nil {
			return fmt.Errorf("txq/academic: check migration %s: %w", entry.Name(), err)
		}
		if applied {
			continue
		}

		data, readErr := fs.ReadFile(migrationsFS, "migrations/"+entry.Name())
		if readErr != nil {
			return fmt.Errorf("txq/academic: read migration %s: %w", entry.Name(), readErr)
		}
		if _, execErr := s.db.ExecContext(ctx, string(data)); execErr != nil {
			return fmt.Errorf("txq/academic: execute migration %s: %w", entry.Name(), execErr)
		}
		if _, recErr := s.db.ExecContext(ctx,
			`INSERT INTO txq_migrations (filename) VALUES (?)`, entry.Name(),
		); recErr != nil {
			return fmt.Errorf("txq/academic: record migration %s: %w", entry.Name(), recErr)
		}

		s.logger.Info("applied migration", slog.String("file", entry.Name()))
	}
	return nil
}

// Ping checks database connectivity.
func (s *Bun) Ping(ctx context.Context) error {
	if db, ok := s.db.(*bun.DB); ok {
		return db.PingContext(ctx)
	}
	return nil
}

// ── Idempotency guard ─────────────────────────────────────────────

func (s *Bun) IsProcessed(ctx context.Context, messageID string) (bool, error) {
	exists, err := s.db.NewSelect().
		Model((*ProcessedMessage)(nil)).
		Where("message_id = ?", messageID).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("txq/academic: is processed: %w", err)
	}
	return exists, nil
}

func (s *Bun) MarkProcessed(ctx context.Context, messageID string) error {
	m := &ProcessedMessage{MessageID: messageID, ProcessedAt: time.Now().UTC()}
	_, err := s.db.NewInsert().Model(m).
		On("CONFLICT (message_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("txq/academic: mark processed: %w", err)
	}
	return nil
}

// ── Aula ──────────────────────────────────────────────────────────

func (s *Bun) AulaByCodigo(ctx context.Context, codigo string) (*Aula, error) {
	a := new(Aula)
	if err := s.getBy(ctx, "aula by codigo", a, "codigo = ?", codigo); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Bun) CreateAula(ctx context.Context, a *Aula) error {
	return s.insert(ctx, "create aula", a)
}

func (s *Bun) UpdateAula(ctx context.Context, a *Aula) error {
	return s.update(ctx, "update aula", a)
}

func (s *Bun) DeleteAula(ctx context.Context, codigo string) error {
	return s.deleteBy(ctx, "delete aula", (*Aula)(nil), "codigo = ?", codigo)
}

// ── Nivel ─────────────────────────────────────────────────────────

func (s *Bun) NivelByNumero(ctx context.Context, numero int) (*Nivel, error) {
	n := new(Nivel)
	if err := s.getBy(ctx, "nivel by numero", n, "numero = ?", numero); err != nil {
		return nil, err
	}
	return n, nil
}

func (s *Bun) CreateNivel(ctx context.Context, n *Nivel) error {
	return s.insert(ctx, "create nivel", n)
}

func (s *Bun) UpdateNivel(ctx context.Context, n *Nivel) error {
	return s.update(ctx, "update nivel", n)
}

func (s *Bun) DeleteNivel(ctx context.Context, numero int) error {
	return s.deleteBy(ctx, "delete nivel", (*Nivel)(nil), "numero = ?", numero)
}

// ── Materia ───────────────────────────────────────────────────────

func (s *Bun) MateriaByCodigo(ctx context.Context, codigo string) (*Materia, error) {
	m := new(Materia)
	if err := s.getBy(ctx, "materia by codigo", m, "codigo = ?", codigo); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Bun) CreateMateria(ctx context.Context, m *Materia) error {
	return s.insert(ctx, "create materia", m)
}

func (s *Bun) UpdateMateria(ctx context.Context, m *Materia) error {
	return s.update(ctx, "update materia", m)
}

func (s *Bun) DeleteMateria(ctx context.Context, codigo string) error {
	return s.deleteBy(ctx, "delete materia", (*Materia)(nil), "codigo = ?", codigo)
}

// ── Docente ───────────────────────────────────────────────────────

func (s *Bun) DocenteByCI(ctx context.Context, ci string) (*Docente, error) {
	d := new(Docente)
	if err := s.getBy(ctx, "docente by ci", d, "ci = ?", ci); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Bun) CreateDocente(ctx context.Context, d *Docente) error {
	return s.insert(ctx, "create docente", d)
}

func (s *Bun) UpdateDocente(ctx context.Context, d *Docente) error {
	return s.update(ctx, "update docente", d)
}

func (s *Bun) DeleteDocente(ctx context.Context, ci string) error {
	return s.deleteBy(ctx, "delete docente", (*Docente)(nil), "ci = ?", ci)
}

// ── Estudiante ────────────────────────────────────────────────────

func (s *Bun) EstudianteByRegistro(ctx context.Context, registro string) (*Estudiante, error) {
	e := new(Estudiante)
	if err := s.getBy(ctx, "estudiante by registro", e, "registro = ?", registro); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Bun) CreateEstudiante(ctx context.Context, e *Estudiante) error {
	return s.insert(ctx, "create estudiante", e)
}

func (s *Bun) UpdateEstudiante(ctx context.Context, e *Estudiante) error {
	return s.update(ctx, "update estudiante", e)
}

func (s *Bun) DeleteEstudiante(ctx context.Context, registro string) error {
	return s.deleteBy(ctx, "delete estudiante", (*Estudiante)(nil), "registro = ?", registro)
}

// ── PeriodoAcademico ──────────────────────────────────────────────

func (s *Bun) PeriodoByGestion(ctx context.Context, gestion string) (*PeriodoAcademico, error) {
	p := new(PeriodoAcademico)
	if err := s.getBy(ctx, "periodo by gestion", p, "gestion = ?", gestion); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Bun) CreatePeriodo(ctx context.Context, p *PeriodoAcademico) error {
	return s.insert(ctx, "create periodo", p)
}

func (s *Bun) UpdatePeriodo(ctx context.Context, p *PeriodoAcademico) error {
	return s.update(ctx, "update periodo", p)
}

func (s *Bun) DeletePeriodo(ctx context.Context, gestion string) error {
	return s.deleteBy(ctx, "delete periodo", (*PeriodoAcademico)(nil), "gestion = ?", gestion)
}

// ── PlanDeEstudio ─────────────────────────────────────────────────

func (s *Bun) PlanByCodigo(ctx context.Context, codigo string) (*PlanDeEstudio, error) {
	p := new(PlanDeEstudio)
	if err := s.getBy(ctx, "plan by codigo", p, "codigo = ?", codigo); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Bun) CreatePlan(ctx context.Context, p *PlanDeEstudio) error {
	return s.insert(ctx, "create plan", p)
}

func (s *Bun) UpdatePlan(ctx context.Context, p *PlanDeEstudio) error {
	return s.update(ctx, "update plan", p)
}

func (s *Bun) DeletePlan(ctx context.Context, codigo string) error {
	return s.deleteBy(ctx, "delete plan", (*PlanDeEstudio)(nil), "codigo = ?", codigo)
}

// ── GrupoMateria ──────────────────────────────────────────────────

func (s *Bun) GrupoMateria(ctx context.Context, materiaCodigo, grupo string, periodoID int64) (*GrupoMateria, error) {
	g := new(GrupoMateria)
	err := s.db.NewSelect().Model(g).
		Relation("Materia").
		Where("materia.codigo = ?", materiaCodigo).
		Where("grupo_materia.grupo = ?", grupo).
		Where("grupo_materia.periodo_id = ?", periodoID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("txq/academic: grupo materia: %w", err)
	}
	return g, nil
}

func (s *Bun) CreateGrupoMateria(ctx context.Context, g *GrupoMateria) error {
	return s.insert(ctx, "create grupo materia", g)
}

func (s *Bun) UpdateGrupoMateria(ctx context.Context, g *GrupoMateria) error {
	return s.update(ctx, "update grupo materia", g)
}

func (s *Bun) DeleteGrupoMateria(ctx context.Context, id int64) error {
	return s.deleteBy(ctx, "delete grupo materia", (*GrupoMateria)(nil), "id = ?", id)
}

// ── Inscripcion ───────────────────────────────────────────────────

func (s *Bun) InscripcionByID(ctx context.Context, id int64) (*Inscripcion, error) {
	i := new(Inscripcion)
	err := s.db.NewSelect().Model(i).
		Relation("Detalles").
		Where("inscripcion.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("txq/academic: inscripcion by id: %w", err)
	}
	return i, nil
}

func (s *Bun) InscripcionFor(ctx context.Context, registro string, periodoID int64) (*Inscripcion, error) {
	i := new(Inscripcion)
	err := s.db.NewSelect().Model(i).
		Relation("Detalles").
		Join("JOIN estudiantes AS e ON e.id = inscripcion.estudiante_id").
		Where("e.registro = ?", registro).
		Where("inscripcion.periodo_id = ?", periodoID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("txq/academic: inscripcion for: %w", err)
	}
	return i, nil
}

func (s *Bun) CreateInscripcion(ctx context.Context, i *Inscripcion) error {
	return s.insert(ctx, "create inscripcion", i)
}

func (s *Bun) UpdateInscripcion(ctx context.Context, i *Inscripcion) error {
	return s.update(ctx, "update inscripcion", i)
}

func (s *Bun) DeleteInscripcion(ctx context.Context, id int64) error {
	return s.deleteBy(ctx, "delete inscripcion", (*Inscripcion)(nil), "id = ?", id)
}

// ── DetalleInscripcion ────────────────────────────────────────────

func (s *Bun) DetalleFor(ctx context.Context, inscripcionID, grupoMateriaID int64) (*DetalleInscripcion, error) {
	d := new(DetalleInscripcion)
	err := s.getBy(ctx, "detalle for", d,
		"inscripcion_id = ? AND grupo_materia_id = ?", inscripcionID, grupoMateriaID)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Bun) CreateDetalle(ctx context.Context, d *DetalleInscripcion) error {
	return s.insert(ctx, "create detalle", d)
}

func (s *Bun) UpdateDetalle(ctx context.Context, d *DetalleInscripcion) error {
	return s.update(ctx, "update detalle", d)
}

func (s *Bun) DeleteDetalle(ctx context.Context, id int64) error {
	return s.deleteBy(ctx, "delete detalle", (*DetalleInscripcion)(nil), "id = ?", id)
}

// ── Transactions ──────────────────────────────────────────────────

// RunInTx runs fn inside a database transaction. When the receiver is
// already transactional the call joins the enclosing transaction.
func (s *Bun) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	db, ok := s.db.(*bun.DB)
	if !ok {
		return fn(ctx, s)
	}
	return db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &Bun{db: tx, logger: s.logger})
	})
}

// ── Helpers ───────────────────────────────────────────────────────

func (s *Bun) getBy(ctx context.Context, op string, m any, where string, args ...any) error {
	err := s.db.NewSelect().Model(m).Where(where, args...).Limit(1).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return ErrNotFound
		}
		return fmt.Errorf("txq/academic: %s: %w", op, err)
	}
	return nil
}

func (s *Bun) insert(ctx context.Context, op string, m any) error {
	if _, err := s.db.NewInsert().Model(m).Exec(ctx); err != nil {
		return classify(op, err)
	}
	return nil
}

func (s *Bun) update(ctx context.Context, op string, m any) error {
	res, err := s.db.NewUpdate().Model(m).WherePK().Exec(ctx)
	if err != nil {
		return classify(op, err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Bun) deleteBy(ctx context.Context, op string, m any, where string, args ...any) error {
	res, err := s.db.NewDelete().Model(m).Where(where, args...).Exec(ctx)
	if err != nil {
		return classify(op, err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func classify(op string, err error) error {
	switch {
	case isPgCode(err, "23505"):
		return fmt.Errorf("txq/academic: %s: %w", op, ErrDuplicate)
	case isPgCode(err, "23503"):
		return fmt.Errorf("txq/academic: %s: %w", op, ErrForeignKey)
	}
	return fmt.Errorf("txq/academic: %s: %w", op, err)
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func isPgCode(err error, code string) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == code
	}
	return false
}
