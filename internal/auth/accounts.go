package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"maritimeacademy/site-admin/internal/docstore"
)

// accountRecord is the stored shape of an account, password hash included.
// Legacy records carry a single "role" and may lack isActive.
type accountRecord struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	Password  string     `json:"password"`
	Roles     []string   `json:"roles"`
	Role      string     `json:"role"`
	IsActive  *bool      `json:"isActive"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	LastLogin *time.Time `json:"lastLogin"`
	CreatedBy string     `json:"createdBy"`
}

func (r accountRecord) active() bool {
	return r.IsActive == nil || *r.IsActive
}

func (r accountRecord) roles() []Role {
	if len(r.Roles) > 0 {
		return lenientRoles(r.Roles)
	}
	if r.Role != "" {
		return lenientRoles([]string{r.Role})
	}
	return []Role{}
}

func (r accountRecord) account() Account {
	return Account{
		ID:        r.ID,
		Email:     r.Email,
		Name:      r.Name,
		Roles:     r.roles(),
		IsActive:  r.active(),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		LastLogin: r.LastLogin,
		CreatedBy: r.CreatedBy,
	}
}

// Directory stores administrator accounts. Deleting an account only marks
// it inactive; inactive accounts are invisible to FindByEmail and the
// listings, and their email may be taken by a new account.
type Directory struct {
	coll    *docstore.Collection
	hasher  Hasher
	nowFunc func() time.Time
}

func NewDirectory(coll *docstore.Collection, hasher Hasher) (*Directory, error) {
	if coll == nil {
		return nil, fmt.Errorf("account collection is required")
	}
	return &Directory{coll: coll, hasher: hasher, nowFunc: time.Now}, nil
}

func (d *Directory) FindByEmail(ctx context.Context, email string) (Account, error) {
	rec, err := d.recordByEmail(ctx, email)
	if err != nil {
		return Account{}, err
	}
	return rec.account(), nil
}

// FindByID also returns inactive accounts.
func (d *Directory) FindByID(ctx context.Context, id string) (Account, error) {
	rec, err := d.recordByID(ctx, id)
	if err != nil {
		return Account{}, err
	}
	return rec.account(), nil
}

func (d *Directory) Create(ctx context.Context, in NewAccount) (Account, error) {
	email := strings.TrimSpace(in.Email)
	if err := validateEmail(email); err != nil {
		return Account{}, err
	}
	roles, err := requiredRoles(in.Roles)
	if err != nil {
		return Account{}, err
	}
	hash, err := d.hasher.Hash(in.Password)
	if err != nil {
		return Account{}, err
	}

	active := true
	rec := struct {
		ID        string   `json:"id,omitempty"`
		Email     string   `json:"email"`
		Name      string   `json:"name"`
		Password  string   `json:"password"`
		Roles     []string `json:"roles"`
		Role      string   `json:"role,omitempty"`
		IsActive  *bool    `json:"isActive"`
		CreatedBy string   `json:"createdBy,omitempty"`
	}{
		ID:        strings.TrimSpace(in.ID),
		Email:     email,
		Name:      strings.TrimSpace(in.Name),
		Password:  hash,
		Roles:     roleStrings(roles),
		Role:      string(Account{Roles: roles}.PrimaryRole()),
		IsActive:  &active,
		CreatedBy: strings.TrimSpace(in.CreatedBy),
	}
	doc, err := docstore.Encode(rec)
	if err != nil {
		return Account{}, err
	}
	created, err := d.coll.Create(ctx, doc, uniqueActiveEmail())
	if err != nil {
		return Account{}, err
	}
	return decodeAccount(created)
}

func (d *Directory) Update(ctx context.Context, id string, in AccountUpdate) (Account, error) {
	cur, err := d.recordByID(ctx, id)
	if err != nil {
		return Account{}, err
	}

	patch := docstore.Document{}
	var opts []docstore.WriteOption
	if in.Email != nil {
		email := strings.TrimSpace(*in.Email)
		if err := validateEmail(email); err != nil {
			return Account{}, err
		}
		if err := patch.Set("email", email); err != nil {
			return Account{}, err
		}
		if !strings.EqualFold(email, cur.Email) {
			opts = append(opts, uniqueActiveEmail())
		}
	}
	if in.Name != nil {
		if err := patch.Set("name", strings.TrimSpace(*in.Name)); err != nil {
			return Account{}, err
		}
	}
	if in.Password != nil {
		hash, err := d.hasher.Hash(*in.Password)
		if err != nil {
			return Account{}, err
		}
		if err := patch.Set("password", hash); err != nil {
			return Account{}, err
		}
	}
	if in.Roles != nil {
		roles, err := requiredRoles(in.Roles)
		if err != nil {
			return Account{}, err
		}
		if err := patch.Set("roles", roleStrings(roles)); err != nil {
			return Account{}, err
		}
		if err := patch.Set("role", string(Account{Roles: roles}.PrimaryRole())); err != nil {
			return Account{}, err
		}
	}
	if in.IsActive != nil {
		if err := patch.Set("isActive", *in.IsActive); err != nil {
			return Account{}, err
		}
		if *in.IsActive && !cur.active() && len(opts) == 0 {
			opts = append(opts, uniqueActiveEmail())
		}
	}

	updated, err := d.coll.Update(ctx, id, patch, opts...)
	if err != nil {
		return Account{}, mapAccountErr(err)
	}
	return decodeAccount(updated)
}

// Deactivate marks the account inactive. The record is kept so createdBy
// references and session history still resolve.
func (d *Directory) Deactivate(ctx context.Context, id string) error {
	patch := docstore.Document{}
	if err := patch.Set("isActive", false); err != nil {
		return err
	}
	if _, err := d.coll.Update(ctx, id, patch); err != nil {
		return mapAccountErr(err)
	}
	return nil
}

func (d *Directory) TouchLastLogin(ctx context.Context, id string) error {
	patch := docstore.Document{}
	if err := patch.Set("lastLogin", d.nowFunc().UTC()); err != nil {
		return err
	}
	if _, err := d.coll.Update(ctx, id, patch); err != nil {
		return mapAccountErr(err)
	}
	return nil
}

// ListByRole returns active accounts that hold role itself.
func (d *Directory) ListByRole(ctx context.Context, role Role) ([]Account, error) {
	all, err := d.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Account, 0, len(all))
	for _, a := range all {
		for _, r := range a.Roles {
			if r == role {
				out = append(out, a)
				break
			}
		}
	}
	return out, nil
}

// ListAll returns active accounts in storage order.
func (d *Directory) ListAll(ctx context.Context) ([]Account, error) {
	docs, err := d.coll.FindWhere(ctx, isActiveDoc)
	if err != nil {
		return nil, err
	}
	out := make([]Account, 0, len(docs))
	for _, doc := range docs {
		a, err := decodeAccount(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (d *Directory) recordByEmail(ctx context.Context, email string) (accountRecord, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return accountRecord{}, ErrAccountNotFound
	}
	match := docstore.FieldEqualFold("email", email)
	doc, err := d.coll.FindOne(ctx, func(doc docstore.Document) bool {
		return isActiveDoc(doc) && match(doc)
	})
	if err != nil {
		return accountRecord{}, mapAccountErr(err)
	}
	return decodeRecord(doc)
}

// inactiveByEmail returns the id of a deactivated account using email.
func (d *Directory) inactiveByEmail(ctx context.Context, email string) (string, bool) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", false
	}
	match := docstore.FieldEqualFold("email", email)
	doc, err := d.coll.FindOne(ctx, func(doc docstore.Document) bool {
		return !isActiveDoc(doc) && match(doc)
	})
	if err != nil {
		return "", false
	}
	return doc.ID(), true
}

func (d *Directory) recordByID(ctx context.Context, id string) (accountRecord, error) {
	doc, err := d.coll.FindByID(ctx, id)
	if err != nil {
		return accountRecord{}, mapAccountErr(err)
	}
	return decodeRecord(doc)
}

func uniqueActiveEmail() docstore.WriteOption {
	return docstore.Guard(func(candidate docstore.Document, others []docstore.Document) error {
		if !isActiveDoc(candidate) {
			return nil
		}
		email := strings.TrimSpace(candidate.String("email"))
		for _, o := range others {
			if isActiveDoc(o) && strings.EqualFold(strings.TrimSpace(o.String("email")), email) {
				return fmt.Errorf("%w: %s", ErrEmailInUse, email)
			}
		}
		return nil
	})
}

func isActiveDoc(d docstore.Document) bool {
	active, ok := d.Bool("isActive")
	return !ok || active
}

func decodeRecord(doc docstore.Document) (accountRecord, error) {
	var rec accountRecord
	if err := doc.Decode(&rec); err != nil {
		return accountRecord{}, err
	}
	return rec, nil
}

func decodeAccount(doc docstore.Document) (Account, error) {
	rec, err := decodeRecord(doc)
	if err != nil {
		return Account{}, err
	}
	return rec.account(), nil
}

func mapAccountErr(err error) error {
	if errors.Is(err, docstore.ErrNotFound) && !errors.Is(err, ErrAccountNotFound) {
		return ErrAccountNotFound
	}
	return err
}

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("%w: invalid email format", ErrInvalidInput)
	}
	return nil
}
