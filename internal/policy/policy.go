// package policy decides whether an inbound activity is admitted.
//
// Admission is a pure decision: Admit never mutates state. The rate
// counters are bumped by an explicit Record call made only after an
// activity has been accepted.
package policy

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sorrelsocial/sorrel/models"
	"gorm.io/gorm"
)

// The admission failure taxonomy. Each maps to a 4xx status at the HTTP
// boundary; none of these are retryable by the receiver.
var (
	ErrMalformedActivity  = errors.New("malformed activity")
	ErrDomainNotFederated = errors.New("domain not federated")
	ErrBlocked            = errors.New("blocked")
	ErrRateLimited        = errors.New("rate limited")
	ErrCapabilityDenied   = errors.New("capability denied")
)

// DefaultCeiling is the per-domain and per-account daily post ceiling.
const DefaultCeiling = 8640

const windowLength = 24 * time.Hour

type window struct {
	start time.Time
	count int
}

// Policy applies federation and admission rules.
type Policy struct {
	db             *gorm.DB
	domainCeiling  int
	accountCeiling int

	mu       sync.Mutex
	domains  map[string]*window
	accounts map[string]*window
	now      func() time.Time
}

func New(db *gorm.DB, domainCeiling, accountCeiling int) *Policy {
	if domainCeiling <= 0 {
		domainCeiling = DefaultCeiling
	}
	if accountCeiling <= 0 {
		accountCeiling = DefaultCeiling
	}
	return &Policy{
		db:             db,
		domainCeiling:  domainCeiling,
		accountCeiling: accountCeiling,
		domains:        make(map[string]*window),
		accounts:       make(map[string]*window),
		now:            time.Now,
	}
}

// Admit decides whether the activity from senderURI may be processed.
// target is the local account addressed by the delivery; nil for shared
// inbox deliveries where the recipient is not yet known. Checks run in
// order and short-circuit on the first failure.
func (p *Policy) Admit(activity map[string]any, senderURI string, target *models.Account) error {
	if err := checkShape(activity); err != nil {
		return err
	}

	domain, err := domainOf(senderURI)
	if err != nil {
		return fmt.Errorf("%w: bad actor uri %q", ErrMalformedActivity, senderURI)
	}

	if err := p.checkFederated(domain); err != nil {
		return err
	}
	if err := p.checkBlocked(domain, senderURI); err != nil {
		return err
	}
	if err := p.checkRate(domain, senderURI); err != nil {
		return err
	}
	return checkCapability(activity, target)
}

// Record bumps the rate counters for an accepted activity.
func (p *Policy) Record(senderURI string) {
	domain, err := domainOf(senderURI)
	if err != nil {
		return
	}
	now := p.now()
	p.mu.Lock()
	defer p.mu.Unlock()
	bump(p.domains, domain, now)
	bump(p.accounts, senderURI, now)
}

func bump(m map[string]*window, key string, now time.Time) {
	w, ok := m[key]
	if !ok || now.Sub(w.start) > windowLength {
		m[key] = &window{start: now, count: 1}
		return
	}
	w.count++
}

func (p *Policy) checkFederated(domain string) error {
	var allows []models.DomainAllow
	if err := p.db.Find(&allows).Error; err != nil {
		return err
	}
	if len(allows) == 0 {
		// empty allow list federates with everyone
		return nil
	}
	for _, allow := range allows {
		if allow.Domain == "*" || strings.EqualFold(allow.Domain, domain) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrDomainNotFederated, domain)
}

func (p *Policy) checkBlocked(domain, senderURI string) error {
	var count int64
	if err := p.db.Model(&models.DomainBlock{}).Where("domain = ?", domain).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: domain %s", ErrBlocked, domain)
	}
	if err := p.db.Model(&models.ActorBlock{}).Where("uri = ?", senderURI).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: actor %s", ErrBlocked, senderURI)
	}
	return nil
}

func (p *Policy) checkRate(domain, senderURI string) error {
	now := p.now()
	p.mu.Lock()
	defer p.mu.Unlock()
	if peek(p.domains, domain, now) >= p.domainCeiling {
		return fmt.Errorf("%w: domain %s", ErrRateLimited, domain)
	}
	if peek(p.accounts, senderURI, now) >= p.accountCeiling {
		return fmt.Errorf("%w: account %s", ErrRateLimited, senderURI)
	}
	return nil
}

// peek reads the effective count without mutating the window; an expired
// window counts as zero.
func peek(m map[string]*window, key string, now time.Time) int {
	w, ok := m[key]
	if !ok || now.Sub(w.start) > windowLength {
		return 0
	}
	return w.count
}

// checkShape validates the fields every activity must carry, and that the
// object matches the declared type.
func checkShape(activity map[string]any) error {
	typ := stringFromAny(activity["type"])
	if typ == "" {
		return fmt.Errorf("%w: missing type", ErrMalformedActivity)
	}
	if stringFromAny(activity["actor"]) == "" {
		return fmt.Errorf("%w: missing actor", ErrMalformedActivity)
	}
	if stringFromAny(activity["id"]) == "" {
		return fmt.Errorf("%w: missing id", ErrMalformedActivity)
	}
	obj := activity["object"]
	switch typ {
	case "Create", "Update":
		if _, ok := obj.(map[string]any); !ok {
			return fmt.Errorf("%w: %s requires an embedded object", ErrMalformedActivity, typ)
		}
	case "Follow", "Like", "Announce", "Delete", "Accept", "Reject", "Undo":
		switch obj.(type) {
		case string, map[string]any:
		default:
			return fmt.Errorf("%w: %s requires an object", ErrMalformedActivity, typ)
		}
	}
	return nil
}

// checkCapability enforces the target account's interaction restrictions.
func checkCapability(activity map[string]any, target *models.Account) error {
	if target == nil {
		return nil
	}
	typ := stringFromAny(activity["type"])
	switch typ {
	case "Like":
		if target.RejectLikes {
			return fmt.Errorf("%w: likes not accepted", ErrCapabilityDenied)
		}
	case "Announce":
		if target.RejectAnnounces {
			return fmt.Errorf("%w: announces not accepted", ErrCapabilityDenied)
		}
	case "Create":
		obj, _ := activity["object"].(map[string]any)
		if target.RejectReplies && stringFromAny(obj["inReplyTo"]) != "" {
			return fmt.Errorf("%w: replies not accepted", ErrCapabilityDenied)
		}
	}
	return nil
}

func stringFromAny(v any) string {
	s, _ := v.(string)
	return s
}

func domainOf(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("no host in %q", uri)
	}
	return u.Host, nil
}
