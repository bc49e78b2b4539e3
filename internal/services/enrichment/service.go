package enrichment

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BearBump/OrderBox/internal/integrations"
	"github.com/BearBump/OrderBox/internal/integrations/shopify"
	"github.com/BearBump/OrderBox/internal/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	// ErrRateLimited is retryable: the company's Shopify budget for this window is spent.
	ErrRateLimited = errors.New("shopify rate limit reached")
	// ErrNoShopify means the job can never succeed for this order or company.
	ErrNoShopify = errors.New("order or company not linked to shopify")
)

type Repository interface {
	GetCompany(ctx context.Context, id uint64) (*models.Company, error)
	GetOrder(ctx context.Context, companyID, orderID uint64) (*models.Order, error)
	SetOrderStatus(ctx context.Context, orderID uint64, status string) error
	SetOrderUser(ctx context.Context, orderID, userID uint64) error
	UpdateOrderSnapshot(ctx context.Context, orderID uint64, data json.RawMessage, createdAt *time.Time) error

	FindCustomerByEmail(ctx context.Context, companyID uint64, email string) (*models.User, error)
	FindCustomerByName(ctx context.Context, companyID uint64, firstName, lastName string) (*models.User, error)
	CreateUser(ctx context.Context, u *models.User) (*models.User, error)
	UpdateUserEmail(ctx context.Context, userID uint64, email string) error
}

type Platform interface {
	GetOrder(ctx context.Context, creds shopify.Credentials, id int64) (*shopify.Order, error)
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

// Outcome reports which writes one run performed.
type Outcome struct {
	UserID          uint64
	UserCreated     bool
	UserLinked      bool
	StatusChanged   bool
	SnapshotWritten bool
}

func (o Outcome) Changed() bool {
	return o.UserLinked || o.StatusChanged || o.SnapshotWritten
}

type Service struct {
	repo     Repository
	platform Platform
	limiter  RateLimiter
	perMin   int64
}

// New builds the service. A nil limiter or perMinute <= 0 disables rate limiting.
func New(repo Repository, platform Platform, limiter RateLimiter, perMinute int) *Service {
	return &Service{repo: repo, platform: platform, limiter: limiter, perMin: int64(perMinute)}
}

// IsPermanent reports whether retrying err cannot help.
func IsPermanent(err error) bool {
	if errors.Is(err, models.ErrNotFound) || errors.Is(err, ErrNoShopify) {
		return true
	}
	var httpErr *integrations.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusNotFound ||
			httpErr.StatusCode == http.StatusUnauthorized ||
			httpErr.StatusCode == http.StatusForbidden
	}
	return false
}

// Enrich refreshes one order from the platform. Running it twice against
// unchanged platform data writes nothing the second time.
func (s *Service) Enrich(ctx context.Context, orderID, companyID uint64) (Outcome, error) {
	var out Outcome

	order, err := s.repo.GetOrder(ctx, companyID, orderID)
	if err != nil {
		return out, errors.Wrap(err, "load order")
	}
	if order.ShopifyID == nil {
		return out, errors.Wrapf(ErrNoShopify, "order %d", orderID)
	}
	company, err := s.repo.GetCompany(ctx, companyID)
	if err != nil {
		return out, errors.Wrap(err, "load company")
	}
	if !company.HasShopify() {
		return out, errors.Wrapf(ErrNoShopify, "company %d", companyID)
	}

	if err := s.allow(ctx, companyID); err != nil {
		return out, err
	}
	remote, err := s.platform.GetOrder(ctx, shopify.CredentialsFor(company), *order.ShopifyID)
	if err != nil {
		return out, errors.Wrap(err, "fetch shopify order")
	}

	if order.UserID == nil {
		user, created, err := s.resolveCustomer(ctx, company, remote)
		if err != nil {
			return out, err
		}
		if user != nil {
			if err := s.repo.SetOrderUser(ctx, order.ID, user.ID); err != nil {
				return out, err
			}
			out.UserID = user.ID
			out.UserCreated = created
			out.UserLinked = true
		}
	}

	if order.Status == models.OrderStatusUnfulfilled && remote.IsFulfilled() {
		if err := s.repo.SetOrderStatus(ctx, order.ID, models.OrderStatusFulfilled); err != nil {
			return out, err
		}
		out.StatusChanged = true
	}

	snapshot, err := canonicalJSON(remote.Raw)
	if err != nil {
		return out, errors.Wrap(err, "canonical shopify payload")
	}
	stored, err := canonicalJSON(order.ExtraData)
	if err != nil {
		// unreadable snapshot is replaced
		stored = nil
	}
	if !bytes.Equal(snapshot, stored) {
		var createdAt *time.Time
		if t, ok := remote.CreatedTime(); ok {
			createdAt = &t
		}
		if err := s.repo.UpdateOrderSnapshot(ctx, order.ID, snapshot, createdAt); err != nil {
			return out, err
		}
		out.SnapshotWritten = true
		slog.Info("updated order with shopify data", "order_id", order.ID, "company_id", companyID)
	}

	return out, nil
}

func (s *Service) allow(ctx context.Context, companyID uint64) error {
	if s.limiter == nil || s.perMin <= 0 {
		return nil
	}
	ok, n, err := s.limiter.Allow(ctx, "rl:shopify:"+strconv.FormatUint(companyID, 10), s.perMin, time.Minute)
	if err != nil {
		slog.Warn("rate limiter unavailable", "company_id", companyID, "error", err.Error())
		return nil
	}
	if !ok {
		return errors.Wrapf(ErrRateLimited, "company %d at %d requests", companyID, n)
	}
	return nil
}

// resolveCustomer finds the order's customer by email, then by name, and
// otherwise creates a placeholder account that can never log in. Guest
// orders without a customer object link nobody.
func (s *Service) resolveCustomer(ctx context.Context, company *models.Company, remote *shopify.Order) (*models.User, bool, error) {
	if remote.Customer == nil {
		return nil, false, nil
	}
	email := strings.TrimSpace(remote.CustomerEmail())
	first, last := customerName(remote.Customer)
	if email == "" && first == "" && last == "" {
		return nil, false, nil
	}

	if email != "" {
		u, err := s.repo.FindCustomerByEmail(ctx, company.ID, email)
		if err == nil {
			return u, false, nil
		}
		if !errors.Is(err, models.ErrNotFound) {
			return nil, false, err
		}
	}

	if first != "" || last != "" {
		u, err := s.repo.FindCustomerByName(ctx, company.ID, first, last)
		if err == nil {
			if email != "" && u.HasPlaceholderEmail() {
				s.upgradeEmail(ctx, u, email)
			}
			return u, false, nil
		}
		if !errors.Is(err, models.ErrNotFound) {
			return nil, false, err
		}
	}

	fallback := "customer_" + strconv.FormatInt(remote.ID, 10)
	candidates := []string{}
	if email != "" {
		candidates = append(candidates, email)
	}
	placeholder := placeholderEmail(first, last, company.Name, fallback)
	candidates = append(candidates, placeholder)
	// the placeholder local part can collide between namesakes of other tenants
	if local, domain, ok := strings.Cut(placeholder, "@"); ok {
		candidates = append(candidates, local+"_"+strconv.FormatInt(remote.ID, 10)+"@"+domain)
	}

	for _, addr := range candidates {
		u, err := s.repo.CreateUser(ctx, &models.User{
			CompanyID: company.ID,
			Email:     addr,
			FirstName: first,
			LastName:  last,
			Password:  models.UnusablePasswordPrefix + uuid.NewString(),
		})
		if err == nil {
			slog.Info("created customer", "user_id", u.ID, "company_id", company.ID)
			return u, true, nil
		}
		if !errors.Is(err, models.ErrDuplicate) {
			return nil, false, err
		}
	}
	return nil, false, errors.Wrap(models.ErrDuplicate, "no free customer email")
}

func (s *Service) upgradeEmail(ctx context.Context, u *models.User, email string) {
	err := s.repo.UpdateUserEmail(ctx, u.ID, email)
	if err != nil {
		slog.Warn("replace placeholder email", "user_id", u.ID, "error", err.Error())
		return
	}
	u.Email = email
}

func customerName(c *shopify.Customer) (string, string) {
	return strings.TrimSpace(c.FirstName), strings.TrimSpace(c.LastName)
}

// canonicalJSON re-encodes v with sorted object keys; empty input stays nil.
func canonicalJSON(raw json.RawMessage) ([]byte, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}
