package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"deptfunds/internal/auth"
	"deptfunds/internal/core"
	applog "deptfunds/internal/log"
	"deptfunds/internal/storage"
)

// ErrInvalidCredentials is returned by Login for unknown emails and wrong passwords alike.
var ErrInvalidCredentials = errors.New("invalid email or password")

// NewDepartment is the admin form creating a department and its HOD.
type NewDepartment struct {
	Name        string
	Description string
	HODName     string
	HODEmail    string
	HODPassword string
}

// CoordinatorDetails creates or updates a department Coordinator. An empty
// Password keeps the current one on update.
type CoordinatorDetails struct {
	Name     string
	Email    string
	Password string
}

// DepartmentService manages departments and the users tied to them.
type DepartmentService struct {
	storage *storage.SQLiteRepository
	now     func() time.Time
}

func NewDepartmentService(storage *storage.SQLiteRepository) *DepartmentService {
	return &DepartmentService{storage: storage, now: time.Now}
}

// Create stores the department and its HOD in one transaction.
func (s *DepartmentService) Create(ctx context.Context, req NewDepartment) (core.Department, error) {
	if strings.TrimSpace(req.Name) == "" {
		return core.Department{}, core.InvalidInput("department name is required")
	}
	hod := core.User{
		ID:    uuid.NewString(),
		Name:  strings.TrimSpace(req.HODName),
		Email: strings.TrimSpace(req.HODEmail),
		Role:  core.RoleHOD,
	}
	dept := core.Department{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		HODUserID:   hod.ID,
		CreatedAt:   s.now(),
	}
	hod.DepartmentID = dept.ID
	hod.CreatedAt = dept.CreatedAt
	if err := hod.Validate(); err != nil {
		return core.Department{}, core.InvalidInput("hod: %v", err)
	}
	hash, err := hashNewPassword(req.HODPassword)
	if err != nil {
		return core.Department{}, err
	}
	hod.PasswordHash = hash

	err = s.storage.WithTx(ctx, func(q *storage.Queries) error {
		if err := q.CreateDepartment(ctx, dept); err != nil {
			return err
		}
		return q.CreateUser(ctx, hod)
	})
	if err != nil {
		return core.Department{}, err
	}

	slog.InfoContext(ctx, "Department created",
		applog.FieldComponent, applog.ComponentDepartment,
		applog.FieldDepartmentID, dept.ID,
		"name", dept.Name)
	return s.storage.GetDepartment(ctx, dept.ID)
}

// List returns every department with the utilized total recomputed from
// verified bills.
func (s *DepartmentService) List(ctx context.Context) ([]core.Department, error) {
	depts, err := s.storage.ListDepartments(ctx)
	if err != nil {
		return nil, err
	}
	for i := range depts {
		used, err := s.storage.SumTransactions(ctx, storage.TransactionQuery{
			DepartmentID: depts[i].ID,
			Statuses:     []core.Status{core.StatusVerified},
		})
		if err != nil {
			return nil, err
		}
		depts[i].UtilizedFund = used
	}
	return depts, nil
}

func (s *DepartmentService) Get(ctx context.Context, id string) (core.Department, error) {
	return s.storage.GetDepartment(ctx, id)
}

func (s *DepartmentService) Update(ctx context.Context, id, name, description string) (core.Department, error) {
	if strings.TrimSpace(name) == "" {
		return core.Department{}, core.InvalidInput("department name is required")
	}
	if err := s.storage.UpdateDepartmentDetails(ctx, id, name, strings.TrimSpace(description)); err != nil {
		return core.Department{}, err
	}
	return s.storage.GetDepartment(ctx, id)
}

// Delete removes the department, its allocations, its HOD and its
// Coordinator. Bills are kept.
func (s *DepartmentService) Delete(ctx context.Context, id string) error {
	err := s.storage.WithTx(ctx, func(q *storage.Queries) error {
		d, err := q.GetDepartment(ctx, id)
		if err != nil {
			return err
		}
		if err := q.DeleteDepartment(ctx, id); err != nil {
			return err
		}
		for _, userID := range []string{d.HODUserID, d.CoordinatorUserID} {
			if userID == "" {
				continue
			}
			if err := q.DeleteUser(ctx, userID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Department deleted",
		applog.FieldComponent, applog.ComponentDepartment,
		applog.FieldDepartmentID, id)
	return nil
}

func (s *DepartmentService) UpdateHODEmail(ctx context.Context, departmentID, email string) error {
	if !core.ValidEmail(email) {
		return core.InvalidInput("%v", core.ErrInvalidEmail)
	}
	d, err := s.storage.GetDepartment(ctx, departmentID)
	if err != nil {
		return err
	}
	if d.HODUserID == "" {
		return core.NotFound("department has no HOD")
	}
	return s.storage.UpdateUserEmail(ctx, d.HODUserID, email)
}

func (s *DepartmentService) ResetHODPassword(ctx context.Context, departmentID, password string) error {
	hash, err := hashNewPassword(password)
	if err != nil {
		return err
	}
	d, err := s.storage.GetDepartment(ctx, departmentID)
	if err != nil {
		return err
	}
	if d.HODUserID == "" {
		return core.NotFound("department has no HOD")
	}
	return s.storage.UpdateUserPassword(ctx, d.HODUserID, hash)
}

// SaveCoordinator creates the department's Coordinator, or updates it when
// one is already assigned.
func (s *DepartmentService) SaveCoordinator(ctx context.Context, actor core.User, req CoordinatorDetails) (core.User, error) {
	if err := requireHOD(actor); err != nil {
		return core.User{}, err
	}
	var hash string
	if req.Password != "" {
		var err error
		if hash, err = hashNewPassword(req.Password); err != nil {
			return core.User{}, err
		}
	}

	var saved core.User
	err := s.storage.WithTx(ctx, func(q *storage.Queries) error {
		d, err := q.GetDepartment(ctx, actor.DepartmentID)
		if err != nil {
			return err
		}

		if d.CoordinatorUserID != "" {
			existing, err := q.GetUser(ctx, d.CoordinatorUserID)
			if err == nil {
				existing.Name = strings.TrimSpace(req.Name)
				existing.Email = strings.TrimSpace(req.Email)
				if err := existing.Validate(); err != nil {
					return core.InvalidInput("coordinator: %v", err)
				}
				if err := q.UpdateUserProfile(ctx, existing.ID, existing.Name, existing.Email); err != nil {
					return err
				}
				if hash != "" {
					if err := q.UpdateUserPassword(ctx, existing.ID, hash); err != nil {
						return err
					}
				}
				saved = existing
				return nil
			}
			if !errors.Is(err, core.ErrNotFound) {
				return err
			}
			// Dangling reference: fall through and create a fresh Coordinator.
		}

		if hash == "" {
			return core.InvalidInput("%v", core.ErrPasswordTooShort)
		}
		u := core.User{
			ID:           uuid.NewString(),
			Name:         strings.TrimSpace(req.Name),
			Email:        strings.TrimSpace(req.Email),
			PasswordHash: hash,
			Role:         core.RoleCoordinator,
			DepartmentID: d.ID,
			CreatedAt:    s.now(),
		}
		if err := u.Validate(); err != nil {
			return core.InvalidInput("coordinator: %v", err)
		}
		if err := q.CreateUser(ctx, u); err != nil {
			return err
		}
		if err := q.SetDepartmentCoordinator(ctx, d.ID, u.ID); err != nil {
			return err
		}
		saved = u
		return nil
	})
	if err != nil {
		return core.User{}, err
	}
	slog.InfoContext(ctx, "Coordinator saved",
		applog.FieldComponent, applog.ComponentDepartment,
		applog.FieldDepartmentID, actor.DepartmentID,
		applog.FieldUserID, saved.ID)
	return saved, nil
}

// Coordinator returns the department's current Coordinator.
func (s *DepartmentService) Coordinator(ctx context.Context, actor core.User) (core.User, error) {
	if err := requireHOD(actor); err != nil {
		return core.User{}, err
	}
	d, err := s.storage.GetDepartment(ctx, actor.DepartmentID)
	if err != nil {
		return core.User{}, err
	}
	if d.CoordinatorUserID == "" {
		return core.User{}, core.NotFound("no coordinator assigned")
	}
	return s.storage.GetUser(ctx, d.CoordinatorUserID)
}

// RemoveCoordinator deletes the Coordinator and clears the department
// reference. Their pending bills can no longer be verified.
func (s *DepartmentService) RemoveCoordinator(ctx context.Context, actor core.User) error {
	if err := requireHOD(actor); err != nil {
		return err
	}
	return s.storage.WithTx(ctx, func(q *storage.Queries) error {
		d, err := q.GetDepartment(ctx, actor.DepartmentID)
		if err != nil {
			return err
		}
		if d.CoordinatorUserID == "" {
			return core.NotFound("no coordinator assigned")
		}
		if err := q.DeleteUser(ctx, d.CoordinatorUserID); err != nil {
			return err
		}
		return q.SetDepartmentCoordinator(ctx, d.ID, "")
	})
}

// Login checks credentials and returns the user.
func (s *DepartmentService) Login(ctx context.Context, email, password string) (core.User, error) {
	u, err := s.storage.GetUserByEmail(ctx, email)
	if errors.Is(err, core.ErrNotFound) {
		return core.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return core.User{}, err
	}
	if !auth.CheckPassword(u.PasswordHash, password) {
		return core.User{}, ErrInvalidCredentials
	}
	return u, nil
}

// CreateAdmin bootstraps an administrator account.
func (s *DepartmentService) CreateAdmin(ctx context.Context, name, email, password string) (core.User, error) {
	u := core.User{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(name),
		Email:     strings.TrimSpace(email),
		Role:      core.RoleAdmin,
		CreatedAt: s.now(),
	}
	if err := u.Validate(); err != nil {
		return core.User{}, core.InvalidInput("%v", err)
	}
	hash, err := hashNewPassword(password)
	if err != nil {
		return core.User{}, err
	}
	u.PasswordHash = hash
	if err := s.storage.CreateUser(ctx, u); err != nil {
		return core.User{}, err
	}
	return u, nil
}

func requireHOD(actor core.User) error {
	if actor.Role != core.RoleHOD || actor.DepartmentID == "" {
		return core.Forbidden("only an HOD can manage the department coordinator")
	}
	return nil
}

func hashNewPassword(password string) (string, error) {
	if err := core.ValidatePassword(password); err != nil {
		return "", core.InvalidInput("%v", err)
	}
	return auth.HashPassword(password)
}
