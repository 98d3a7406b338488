package applications

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/claystudio/membership-backend/internal/access"
	"github.com/claystudio/membership-backend/internal/contacts"
	"github.com/claystudio/membership-backend/internal/identity"
	"github.com/claystudio/membership-backend/internal/members"
	"github.com/claystudio/membership-backend/internal/notifications"
	"github.com/claystudio/membership-backend/internal/roles"
	"github.com/claystudio/membership-backend/pkg/config"
	"github.com/claystudio/membership-backend/pkg/db/models"
	"github.com/claystudio/membership-backend/pkg/enums"
	"github.com/claystudio/membership-backend/pkg/outbox"
)

var testRoles = access.StudioRoles{Member: "role-member", Invitee: "role-invitee", Admin: "role-admin"}

var testNotifyCfg = config.NotificationsConfig{
	ApprovalTemplateID:       "tpl-approved",
	RejectionTemplateID:      "tpl-rejected",
	PasswordSetupTemplateID:  "tpl-set-password",
	NewApplicationTemplateID: "tpl-new-application",
	AdminContactID:           "admin-contact-1",
}

var fixedNow = time.Date(2026, 10, 1, 9, 30, 0, 0, time.UTC)

// world is an in-memory identity store, CRM and application store.
type world struct {
	mu       sync.Mutex
	members  map[string]uuid.UUID
	contacts map[string]uuid.UUID
	grants   map[uuid.UUID]map[string]struct{}
	apps     map[uuid.UUID]models.Application

	memberCreates  int
	contactCreates int
	roleGrants     int
	findBarrier    *sync.WaitGroup

	// contactRace, when set, runs before contact creation fails with a
	// duplicate, standing in for a concurrent writer.
	contactRace func(email string)
}

func newWorld() *world {
	return &world{
		members:  map[string]uuid.UUID{},
		contacts: map[string]uuid.UUID{},
		grants:   map[uuid.UUID]map[string]struct{}{},
		apps:     map[uuid.UUID]models.Application{},
	}
}

func (w *world) addMember(email string) uuid.UUID {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := uuid.New()
	w.members[email] = id
	return id
}

func (w *world) addContact(email string) uuid.UUID {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := uuid.New()
	w.contacts[email] = id
	return id
}

func (w *world) addApplication(email string, status enums.ApplicationStatus) uuid.UUID {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := uuid.New()
	w.apps[id] = models.Application{
		ID:          id,
		FirstName:   "Ada",
		LastName:    "Potter",
		Email:       email,
		Status:      status,
		SubmittedAt: fixedNow.Add(-time.Hour),
	}
	return id
}

func (w *world) application(id uuid.UUID) models.Application {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.apps[id]
}

func (w *world) hasGrant(memberID uuid.UUID, role access.Role) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.grants[memberID][string(role)]
	return ok
}

// member store

type worldMembers struct{ w *world }

func (m worldMembers) FindByEmail(ctx context.Context, email string) (*models.Member, error) {
	m.w.mu.Lock()
	defer m.w.mu.Unlock()
	if id, ok := m.w.members[email]; ok {
		return &models.Member{ID: id, Email: email}, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m worldMembers) Create(ctx context.Context, dto members.CreateMemberDTO) (*models.Member, error) {
	m.w.mu.Lock()
	defer m.w.mu.Unlock()
	if _, ok := m.w.members[dto.Email]; ok {
		return nil, members.ErrAlreadyExists
	}
	id := uuid.New()
	m.w.members[dto.Email] = id
	m.w.memberCreates++
	return &models.Member{ID: id, Email: dto.Email, FirstName: dto.FirstName}, nil
}

func (m worldMembers) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	m.w.mu.Lock()
	defer m.w.mu.Unlock()
	for _, existing := range m.w.members {
		if existing == id {
			return true, nil
		}
	}
	return false, nil
}

func (m worldMembers) AssignRole(ctx context.Context, id uuid.UUID, role string) error {
	m.w.mu.Lock()
	defer m.w.mu.Unlock()
	if m.w.grants[id] == nil {
		m.w.grants[id] = map[string]struct{}{}
	}
	m.w.grants[id][role] = struct{}{}
	m.w.roleGrants++
	return nil
}

func (m worldMembers) RemoveRole(ctx context.Context, id uuid.UUID, role string) error {
	m.w.mu.Lock()
	defer m.w.mu.Unlock()
	delete(m.w.grants[id], role)
	return nil
}

func (m worldMembers) ListRoles(ctx context.Context, id uuid.UUID) ([]string, error) {
	m.w.mu.Lock()
	defer m.w.mu.Unlock()
	out := []string{}
	for role := range m.w.grants[id] {
		out = append(out, role)
	}
	return out, nil
}

// contact store

type worldContacts struct{ w *world }

func (c worldContacts) FindByEmail(ctx context.Context, email string) (*models.Contact, error) {
	c.w.mu.Lock()
	defer c.w.mu.Unlock()
	if id, ok := c.w.contacts[email]; ok {
		return &models.Contact{ID: id, Email: email}, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (c worldContacts) Create(ctx context.Context, dto contacts.CreateContactDTO) (*models.Contact, error) {
	if race := c.w.contactRace; race != nil {
		race(dto.Email)
		return nil, contacts.ErrAlreadyExists
	}
	c.w.mu.Lock()
	defer c.w.mu.Unlock()
	if _, ok := c.w.contacts[dto.Email]; ok {
		return nil, contacts.ErrAlreadyExists
	}
	id := uuid.New()
	c.w.contacts[dto.Email] = id
	c.w.contactCreates++
	return &models.Contact{ID: id, Email: dto.Email}, nil
}

// application store

type worldApps struct{ w *world }

func (a worldApps) WithTx(tx *gorm.DB) Repository { return a }

func (a worldApps) Create(ctx context.Context, app *models.Application) error {
	a.w.mu.Lock()
	defer a.w.mu.Unlock()
	for _, existing := range a.w.apps {
		if existing.Email == app.Email && existing.Status == enums.ApplicationStatusSubmitted {
			return ErrDuplicatePending
		}
	}
	if app.ID == uuid.Nil {
		app.ID = uuid.New()
	}
	a.w.apps[app.ID] = *app
	return nil
}

func (a worldApps) FindByID(ctx context.Context, id uuid.UUID) (*models.Application, error) {
	if barrier := a.w.findBarrier; barrier != nil {
		barrier.Done()
		barrier.Wait()
	}
	a.w.mu.Lock()
	defer a.w.mu.Unlock()
	app, ok := a.w.apps[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &app, nil
}

func (a worldApps) List(ctx context.Context, params ListParams) ([]models.Application, error) {
	a.w.mu.Lock()
	defer a.w.mu.Unlock()
	out := []models.Application{}
	for _, app := range a.w.apps {
		if params.Status != nil && app.Status != *params.Status {
			continue
		}
		out = append(out, app)
	}
	return out, nil
}

func (a worldApps) ListSubmittedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Application, error) {
	a.w.mu.Lock()
	defer a.w.mu.Unlock()
	out := []models.Application{}
	for _, app := range a.w.apps {
		if app.Status == enums.ApplicationStatusSubmitted && app.SubmittedAt.Before(cutoff) {
			out = append(out, app)
		}
	}
	return out, nil
}

func (a worldApps) UpdateDecision(ctx context.Context, id uuid.UUID, update DecisionUpdate, expected enums.ApplicationStatus) (*models.Application, error) {
	a.w.mu.Lock()
	defer a.w.mu.Unlock()
	app, ok := a.w.apps[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	if app.Status != expected {
		return nil, ErrConflict
	}
	app.Status = update.Status
	app.ApprovedAt = update.ApprovedAt
	app.RejectedAt = update.RejectedAt
	app.Notes = update.Notes
	decidedBy := update.DecidedBy
	app.DecidedBy = &decidedBy
	app.LinkedMemberID = update.LinkedMemberID
	a.w.apps[id] = app
	return &app, nil
}

// collaborators

type passthroughTx struct {
	calls       int
	afterCommit func()
}

func (p *passthroughTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	p.calls++
	if err := fn(nil); err != nil {
		return err
	}
	if p.afterCommit != nil {
		p.afterCommit()
	}
	return nil
}

type recordingOutbox struct {
	mu     sync.Mutex
	events []outbox.Event
	err    error
}

func (r *recordingOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, event)
	return nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	sent    []notifications.Message
	ctxErrs []error
	fail    bool
}

func (r *recordingNotifier) Send(ctx context.Context, msg notifications.Message) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	r.ctxErrs = append(r.ctxErrs, ctx.Err())
	return !r.fail
}

func (r *recordingNotifier) Detach(ctx context.Context, msg notifications.Message) {
	r.Send(ctx, msg)
}

func (r *recordingNotifier) byTemplate(template string) []notifications.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []notifications.Message{}
	for _, m := range r.sent {
		if m.TemplateID == template {
			out = append(out, m)
		}
	}
	return out
}

type harness struct {
	world    *world
	svc      Service
	outbox   *recordingOutbox
	notifier *recordingNotifier
	tx       *passthroughTx
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	w := newWorld()
	memberStore := worldMembers{w: w}
	contactStore := worldContacts{w: w}

	resolver, err := identity.NewResolver(memberStore, contactStore)
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}
	notifier := &recordingNotifier{}
	provisioner, err := members.NewProvisioner(members.ProvisionerParams{
		Members:       memberStore,
		Resolver:      resolver,
		Sender:        notifier,
		Password:      config.PasswordConfig{TempPasswordLength: 16, ArgonMemoryKB: 64, ArgonTime: 1, ArgonParallelism: 1, ArgonSaltLen: 16, ArgonKeyLen: 32},
		SetupTemplate: testNotifyCfg.PasswordSetupTemplateID,
	})
	if err != nil {
		t.Fatalf("provisioner: %v", err)
	}
	assigner, err := roles.NewAssigner(memberStore)
	if err != nil {
		t.Fatalf("assigner: %v", err)
	}

	ob := &recordingOutbox{}
	tx := &passthroughTx{}
	svc, err := NewService(ServiceParams{
		Repository:    worldApps{w: w},
		Tx:            tx,
		Outbox:        ob,
		Resolver:      resolver,
		Provisioner:   provisioner,
		Roles:         assigner,
		Contacts:      contactStore,
		Notifier:      notifier,
		StudioRoles:   testRoles,
		Notifications: testNotifyCfg,
		Now:           func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return &harness{world: w, svc: svc, outbox: ob, notifier: notifier, tx: tx}
}
