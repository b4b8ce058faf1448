package inmem

import (
	"context"
	"sync"
	"time"

	"github.com/ManuelReschke/CertLedger/app/models"
	"github.com/ManuelReschke/CertLedger/app/repository"
)

type state struct {
	credentials map[string]models.Credential
	credSeq     uint
	enrollments map[uint]models.Enrollment
	enrollSeq   uint
	proofs      map[string]models.PaymentProof
	txns        map[string]models.GatewayTransaction
	events      map[uint]models.GatewayCallbackEvent
	eventSeq    uint
	promos      map[string]models.PromoCode
	promoSeq    uint
	students    map[string]models.Student
	courses     map[string]models.Course
	internships map[string]models.Internship
}

func newState() *state {
	return &state{
		credentials: map[string]models.Credential{},
		enrollments: map[uint]models.Enrollment{},
		proofs:      map[string]models.PaymentProof{},
		txns:        map[string]models.GatewayTransaction{},
		events:      map[uint]models.GatewayCallbackEvent{},
		promos:      map[string]models.PromoCode{},
		students:    map[string]models.Student{},
		courses:     map[string]models.Course{},
		internships: map[string]models.Internship{},
	}
}

func (s *state) clone() *state {
	c := *s
	c.credentials = cloneMap(s.credentials)
	c.enrollments = cloneMap(s.enrollments)
	c.proofs = cloneMap(s.proofs)
	c.txns = cloneMap(s.txns)
	c.events = cloneMap(s.events)
	c.promos = cloneMap(s.promos)
	c.students = cloneMap(s.students)
	c.courses = cloneMap(s.courses)
	c.internships = cloneMap(s.internships)
	return &c
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// DB is an in-memory database. All access is serialised behind one mutex,
// and a transaction holds it for its whole duration.
type DB struct {
	mu    sync.Mutex
	state *state
	now   func() time.Time
}

// New creates an empty in-memory database.
func New() *DB {
	return &DB{state: newState(), now: time.Now}
}

// Store returns a repository.Store over the database.
func (db *DB) Store() repository.Store {
	return &store{db: db}
}

type store struct {
	db   *DB
	inTx bool
}

func (s *store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.db.mu.Lock()
	return s.db.mu.Unlock
}

func (s *store) Credentials() repository.CredentialRepository { return &credentialRepository{s} }

func (s *store) Enrollments() repository.EnrollmentRepository { return &enrollmentRepository{s} }

func (s *store) PaymentProofs() repository.PaymentProofRepository { return &paymentProofRepository{s} }

func (s *store) GatewayTransactions() repository.GatewayTransactionRepository {
	return &gatewayTransactionRepository{s}
}

func (s *store) GatewayEvents() repository.GatewayEventRepository { return &gatewayEventRepository{s} }

func (s *store) PromoCodes() repository.PromoCodeRepository { return &promoCodeRepository{s} }

func (s *store) Catalog() repository.CatalogRepository { return &catalogRepository{s} }

func (s *store) Transaction(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	snapshot := s.db.state.clone()
	if err := fn(&store{db: s.db, inTx: true}); err != nil {
		s.db.state = snapshot
		return err
	}
	return nil
}

// Seed holds reference data loaded into a fresh database.
type Seed struct {
	Students    []models.Student    `json:"students"`
	Courses     []models.Course     `json:"courses"`
	Internships []models.Internship `json:"internships"`
	PromoCodes  []models.PromoCode  `json:"promo_codes"`
}

// Load inserts or replaces the seed rows.
func (db *DB) Load(seed Seed) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, st := range seed.Students {
		db.state.students[st.ID] = st
	}
	for _, c := range seed.Courses {
		db.state.courses[c.ID] = c
	}
	for _, i := range seed.Internships {
		db.state.internships[i.ID] = i
	}
	for _, p := range seed.PromoCodes {
		p.Code = models.NormalizePromoCode(p.Code)
		if p.ID == 0 {
			db.state.promoSeq++
			p.ID = db.state.promoSeq
		}
		db.state.promos[p.Code] = p
	}
}

func (db *DB) AddStudent(st models.Student) { db.Load(Seed{Students: []models.Student{st}}) }

func (db *DB) AddCourse(c models.Course) { db.Load(Seed{Courses: []models.Course{c}}) }

func (db *DB) AddInternship(i models.Internship) {
	db.Load(Seed{Internships: []models.Internship{i}})
}

// Count reports the number of rows per table, for tests and diagnostics.
type Count struct {
	Credentials int
	Enrollments int
	Proofs      int
	Txns        int
	Events      int
}

func (db *DB) Count() Count {
	db.mu.Lock()
	defer db.mu.Unlock()
	return Count{
		Credentials: len(db.state.credentials),
		Enrollments: len(db.state.enrollments),
		Proofs:      len(db.state.proofs),
		Txns:        len(db.state.txns),
		Events:      len(db.state.events),
	}
}
