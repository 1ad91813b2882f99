package academic

import (
	"context"
	"sync"
	"time"
)

var _ Store = (*Memory)(nil)

// Memory is an in-memory Store for tests and local development. It
// enforces the same unique and referential constraints as the SQL schema
// and rolls RunInTx back by snapshotting state.
type Memory struct {
	mu   sync.Mutex
	inTx bool
	seq  int64

	aulas         map[int64]*Aula
	niveles       map[int64]*Nivel
	materias      map[int64]*Materia
	docentes      map[int64]*Docente
	estudiantes   map[int64]*Estudiante
	periodos      map[int64]*PeriodoAcademico
	planes        map[int64]*PlanDeEstudio
	grupos        map[int64]*GrupoMateria
	inscripciones map[int64]*Inscripcion
	detalles      map[int64]*DetalleInscripcion
	processed     map[string]time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		aulas:         make(map[int64]*Aula),
		niveles:       make(map[int64]*Nivel),
		materias:      make(map[int64]*Materia),
		docentes:      make(map[int64]*Docente),
		estudiantes:   make(map[int64]*Estudiante),
		periodos:      make(map[int64]*PeriodoAcademico),
		planes:        make(map[int64]*PlanDeEstudio),
		grupos:        make(map[int64]*GrupoMateria),
		inscripciones: make(map[int64]*Inscripcion),
		detalles:      make(map[int64]*DetalleInscripcion),
		processed:     make(map[string]time.Time),
	}
}

func (m *Memory) nextID() int64 {
	m.seq++
	return m.seq
}

// ── Idempotency guard ─────────────────────────────────────────────

func (m *Memory) IsProcessed(_ context.Context, messageID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.processed[messageID]
	return ok, nil
}

func (m *Memory) MarkProcessed(_ context.Context, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.processed[messageID]; !ok {
		m.processed[messageID] = time.Now().UTC()
	}
	return nil
}

// ── Aula ──────────────────────────────────────────────────────────

func (m *Memory) AulaByCodigo(_ context.Context, codigo string) (*Aula, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.aulas {
		if a.Codigo == codigo {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) CreateAula(_ context.Context, a *Aula) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.aulas {
		if e.Codigo == a.Codigo {
			return ErrDuplicate
		}
	}
	a.ID = m.nextID()
	cp := *a
	m.aulas[a.ID] = &cp
	return nil
}

func (m *Memory) UpdateAula(_ context.Context, a *Aula) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.aulas[a.ID]; !ok {
		return ErrNotFound
	}
	cp := *a
	m.aulas[a.ID] = &cp
	return nil
}

func (m *Memory) DeleteAula(_ context.Context, codigo string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, a := range m.aulas {
		if a.Codigo == codigo {
			delete(m.aulas, id)
			return nil
		}
	}
	return ErrNotFound
}

// ── Nivel ─────────────────────────────────────────────────────────

func (m *Memory) NivelByNumero(_ context.Context, numero int) (*Nivel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.niveles {
		if n.Numero == numero {
			cp := *n
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) CreateNivel(_ context.Context, n *Nivel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.niveles {
		if e.Numero == n.Numero {
			return ErrDuplicate
		}
	}
	n.ID = m.nextID()
	cp := *n
	m.niveles[n.ID] = &cp
	return nil
}

func (m *Memory) UpdateNivel(_ context.Context, n *Nivel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.niveles[n.ID]; !ok {
		return ErrNotFound
	}
	cp := *n
	m.niveles[n.ID] = &cp
	return nil
}

func (m *Memory) DeleteNivel(_ context.Context, numero int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, n := range m.niveles {
		if n.Numero != numero {
			continue
		}
		for _, mat := range m.materias {
			if mat.NivelID == id {
				return ErrForeignKey
			}
		}
		delete(m.niveles, id)
		return nil
	}
	return ErrNotFound
}

// ── Materia ───────────────────────────────────────────────────────

func (m *Memory) MateriaByCodigo(_ context.Context, codigo string) (*Materia, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mat := range m.materias {
		if mat.Codigo == codigo {
			cp := *mat
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) CreateMateria(_ context.Context, mat *Materia) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.materias {
		if e.Codigo == mat.Codigo {
			return ErrDuplicate
		}
	}
	if _, ok := m.niveles[mat.NivelID]; !ok {
		return ErrForeignKey
	}
	mat.ID = m.nextID()
	cp := *mat
	m.materias[mat.ID] = &cp
	return nil
}

func (m *Memory) UpdateMateria(_ context.Context, mat *Materia) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.materias[mat.ID]; !ok {
		return ErrNotFound
	}
	if _, ok := m.niveles[mat.NivelID]; !ok {
		return ErrForeignKey
	}
	cp := *mat
	m.materias[mat.ID] = &cp
	return nil
}

func (m *Memory) DeleteMateria(_ context.Context, codigo string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, mat := range m.materias {
		if mat.Codigo != codigo {
			continue
		}
		for _, g := range m.grupos {
			if g.MateriaID == id {
				return ErrForeignKey
			}
		}
		delete(m.materias, id)
		return nil
	}
	return ErrNotFound
}

// ── Docente ───────────────────────────────────────────────────────

func (m *Memory) DocenteByCI(_ context.Context, ci string) (*Docente, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.docentes {
		if d.CI == ci {
			cp := *d
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) CreateDocente(_ context.Context, d *Docente) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.docentes {
		if e.CI == d.CI {
			return ErrDuplicate
		}
	}
	d.ID = m.nextID()
	cp := *d
	m.docentes[d.ID] = &cp
	return nil
}

func (m *Memory) UpdateDocente(_ context.Context, d *Docente) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docentes[d.ID]; !ok {
		return ErrNotFound
	}
	cp := *d
	m.docentes[d.ID] = &cp
	return nil
}

func (m *Memory) DeleteDocente(_ context.Context, ci string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, d := range m.docentes {
		if d.CI == ci {
			delete(m.docentes, id)
			return nil
		}
	}
	return ErrNotFound
}

// ── Estudiante ────────────────────────────────────────────────────

func (m *Memory) EstudianteByRegistro(_ context.Context, registro string) (*Estudiante, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.estudiantes {
		if e.Registro == registro {
			cp := *e
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) CreateEstudiante(_ context.Context, e *Estudiante) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ex := range m.estudiantes {
		if ex.Registro == e.Registro {
			return ErrDuplicate
		}
	}
	e.ID = m.nextID()
	cp := *e
	m.estudiantes[e.ID] = &cp
	return nil
}

func (m *Memory) UpdateEstudiante(_ context.Context, e *Estudiante) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.estudiantes[e.ID]; !ok {
		return ErrNotFound
	}
	cp := *e
	m.estudiantes[e.ID] = &cp
	return nil
}

func (m *Memory) DeleteEstudiante(_ context.Context, registro string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.estudiantes {
		if e.Registro != registro {
			continue
		}
		for _, i := range m.inscripciones {
			if i.EstudianteID == id {
				return ErrForeignKey
			}
		}
		delete(m.estudiantes, id)
		return nil
	}
	return ErrNotFound
}

// ── PeriodoAcademico ──────────────────────────────────────────────

func (m *Memory) PeriodoByGestion(_ context.Context, gestion string) (*PeriodoAcademico, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.periodos {
		if p.Gestion == gestion {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) CreatePeriodo(_ context.Context, p *PeriodoAcademico) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.periodos {
		if e.Gestion == p.Gestion {
			return ErrDuplicate
		}
	}
	p.ID = m.nextID()
	cp := *p
	m.periodos[p.ID] = &cp
	return nil
}

func (m *Memory) UpdatePeriodo(_ context.Context, p *PeriodoAcademico) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.periodos[p.ID]; !ok {
		return ErrNotFound
	}
	cp := *p
	m.periodos[p.ID] = &cp
	return nil
}

func (m *Memory) DeletePeriodo(_ context.Context, gestion string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.periodos {
		if p.Gestion != gestion {
			continue
		}
		for _, g := range m.grupos {
			if g.PeriodoID == id {
				return ErrForeignKey
			}
		}
		for _, i := range m.inscripciones {
			if i.PeriodoID == id {
				return ErrForeignKey
			}
		}
		delete(m.periodos, id)
		return nil
	}
	return ErrNotFound
}

// ── PlanDeEstudio ─────────────────────────────────────────────────

func (m *Memory) PlanByCodigo(_ context.Context, codigo string) (*PlanDeEstudio, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.planes {
		if p.Codigo == codigo {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) CreatePlan(_ context.Context, p *PlanDeEstudio) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.planes {
		if e.Codigo == p.Codigo {
			return ErrDuplicate
		}
	}
	p.ID = m.nextID()
	cp := *p
	m.planes[p.ID] = &cp
	return nil
}

func (m *Memory) UpdatePlan(_ context.Context, p *PlanDeEstudio) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.planes[p.ID]; !ok {
		return ErrNotFound
	}
	cp := *p
	m.planes[p.ID] = &cp
	return nil
}

func (m *Memory) DeletePlan(_ context.Context, codigo string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.planes {
		if p.Codigo == codigo {
			delete(m.planes, id)
			return nil
		}
	}
	return ErrNotFound
}

// ── GrupoMateria ──────────────────────────────────────────────────

func (m *Memory) GrupoMateria(_ context.Context, materiaCodigo, grupo string, periodoID int64) (*GrupoMateria, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var materia *Materia
	for _, mat := range m.materias {
		if mat.Codigo == materiaCodigo {
			materia = mat
			break
		}
	}
	if materia == nil {
		return nil, ErrNotFound
	}
	for _, g := range m.grupos {
		if g.MateriaID == materia.ID && g.Grupo == grupo && g.PeriodoID == periodoID {
			cp := *g
			matCp := *materia
			cp.Materia = &matCp
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) CreateGrupoMateria(_ context.Context, g *GrupoMateria) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.materias[g.MateriaID]; !ok {
		return ErrForeignKey
	}
	if _, ok := m.periodos[g.PeriodoID]; !ok {
		return ErrForeignKey
	}
	for _, e := range m.grupos {
		if e.MateriaID == g.MateriaID && e.Grupo == g.Grupo && e.PeriodoID == g.PeriodoID {
			return ErrDuplicate
		}
	}
	g.ID = m.nextID()
	cp := *g
	cp.Materia = nil
	m.grupos[g.ID] = &cp
	return nil
}

func (m *Memory) UpdateGrupoMateria(_ context.Context, g *GrupoMateria) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.grupos[g.ID]; !ok {
		return ErrNotFound
	}
	cp := *g
	cp.Materia = nil
	m.grupos[g.ID] = &cp
	return nil
}

func (m *Memory) DeleteGrupoMateria(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.grupos[id]; !ok {
		return ErrNotFound
	}
	for _, d := range m.detalles {
		if d.GrupoMateriaID == id {
			return ErrForeignKey
		}
	}
	delete(m.grupos, id)
	return nil
}

// ── Inscripcion ───────────────────────────────────────────────────

func (m *Memory) InscripcionByID(_ context.Context, id int64) (*Inscripcion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.inscripciones[id]
	if !ok {
		return nil, ErrNotFound
	}
	return m.inscripcionCopyLocked(i), nil
}

func (m *Memory) InscripcionFor(_ context.Context, registro string, periodoID int64) (*Inscripcion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var est *Estudiante
	for _, e := range m.estudiantes {
		if e.Registro == registro {
			est = e
			break
		}
	}
	if est == nil {
		return nil, ErrNotFound
	}
	for _, i := range m.inscripciones {
		if i.EstudianteID == est.ID && i.PeriodoID == periodoID {
			return m.inscripcionCopyLocked(i), nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) CreateInscripcion(_ context.Context, i *Inscripcion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.estudiantes[i.EstudianteID]; !ok {
		return ErrForeignKey
	}
	if _, ok := m.periodos[i.PeriodoID]; !ok {
		return ErrForeignKey
	}
	for _, e := range m.inscripciones {
		if e.EstudianteID == i.EstudianteID && e.PeriodoID == i.PeriodoID {
			return ErrDuplicate
		}
	}
	i.ID = m.nextID()
	cp := *i
	cp.Detalles = nil
	m.inscripciones[i.ID] = &cp
	return nil
}

func (m *Memory) UpdateInscripcion(_ context.Context, i *Inscripcion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.inscripciones[i.ID]; !ok {
		return ErrNotFound
	}
	cp := *i
	cp.Detalles = nil
	m.inscripciones[i.ID] = &cp
	return nil
}

func (m *Memory) DeleteInscripcion(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.inscripciones[id]; !ok {
		return ErrNotFound
	}
	for _, d := range m.detalles {
		if d.InscripcionID == id {
			return ErrForeignKey
		}
	}
	delete(m.inscripciones, id)
	return nil
}

func (m *Memory) inscripcionCopyLocked(i *Inscripcion) *Inscripcion {
	cp := *i
	cp.Detalles = nil
	for _, d := range m.detalles {
		if d.InscripcionID == i.ID {
			dCp := *d
			cp.Detalles = append(cp.Detalles, &dCp)
		}
	}
	return &cp
}

// ── DetalleInscripcion ────────────────────────────────────────────

func (m *Memory) DetalleFor(_ context.Context, inscripcionID, grupoMateriaID int64) (*DetalleInscripcion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.detalles {
		if d.InscripcionID == inscripcionID && d.GrupoMateriaID == grupoMateriaID {
			cp := *d
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) CreateDetalle(_ context.Context, d *DetalleInscripcion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.inscripciones[d.InscripcionID]; !ok {
		return ErrForeignKey
	}
	if _, ok := m.grupos[d.GrupoMateriaID]; !ok {
		return ErrForeignKey
	}
	for _, e := range m.detalles {
		if e.InscripcionID == d.InscripcionID && e.GrupoMateriaID == d.GrupoMateriaID {
			return ErrDuplicate
		}
	}
	d.ID = m.nextID()
	cp := *d
	m.detalles[d.ID] = &cp
	return nil
}

func (m *Memory) UpdateDetalle(_ context.Context, d *DetalleInscripcion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.detalles[d.ID]; !ok {
		return ErrNotFound
	}
	cp := *d
	m.detalles[d.ID] = &cp
	return nil
}

func (m *Memory) DeleteDetalle(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.detalles[id]; !ok {
		return ErrNotFound
	}
	delete(m.detalles, id)
	return nil
}

// ── Transactions ──────────────────────────────────────────────────

type memorySnapshot struct {
	seq           int64
	aulas         map[int64]*Aula
	niveles       map[int64]*Nivel
	materias      map[int64]*Materia
	docentes      map[int64]*Docente
	estudiantes   map[int64]*Estudiante
	periodos      map[int64]*PeriodoAcademico
	planes        map[int64]*PlanDeEstudio
	grupos        map[int64]*GrupoMateria
	inscripciones map[int64]*Inscripcion
	detalles      map[int64]*DetalleInscripcion
	processed     map[string]time.Time
}

// RunInTx snapshots state, runs fn, and restores the snapshot when fn
// fails. Nested calls join the enclosing transaction.
func (m *Memory) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	m.mu.Lock()
	if m.inTx {
		m.mu.Unlock()
		return fn(ctx, m)
	}
	m.inTx = true
	snap := m.snapshotLocked()
	m.mu.Unlock()

	err := fn(ctx, m)

	m.mu.Lock()
	if err != nil {
		m.restoreLocked(snap)
	}
	m.inTx = false
	m.mu.Unlock()
	return err
}

func (m *Memory) snapshotLocked() *memorySnapshot {
	return &memorySnapshot{
		seq:           m.seq,
		aulas:         copyMap(m.aulas),
		niveles:       copyMap(m.niveles),
		materias:      copyMap(m.materias),
		docentes:      copyMap(m.docentes),
		estudiantes:   copyMap(m.estudiantes),
		periodos:      copyMap(m.periodos),
		planes:        copyMap(m.planes),
		grupos:        copyMap(m.grupos),
		inscripciones: copyMap(m.inscripciones),
		detalles:      copyMap(m.detalles),
		processed:     copyFlat(m.processed),
	}
}

func (m *Memory) restoreLocked(s *memorySnapshot) {
	m.seq = s.seq
	m.aulas = s.aulas
	m.niveles = s.niveles
	m.materias = s.materias
	m.docentes = s.docentes
	m.estudiantes = s.estudiantes
	m.periodos = s.periodos
	m.planes = s.planes
	m.grupos = s.grupos
	m.inscripciones = s.inscripciones
	m.detalles = s.detalles
	m.processed = s.processed
}

func copyMap[T any](src map[int64]*T) map[int64]*T {
	dst := make(map[int64]*T, len(src))
	for k, v := range src {
		cp := *v
		dst[k] = &cp
	}
	return dst
}

func copyFlat(src map[string]time.Time) map[string]time.Time {
	dst := make(map[string]time.Time, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
