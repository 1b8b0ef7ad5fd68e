// Package compose builds the outbound notification bodies.
//
// Composition is pure: the same inputs always produce the same body, which is
// what lets the dispatcher deduplicate by body hash. Nothing here reads the
// clock, the network or random state.
package compose

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"civicnotify/internal/complaint"
	"civicnotify/internal/directory"
	"civicnotify/internal/token"
)

// Marker is appended to any field cut short.
const Marker = "..."

const dateLayout = "02 Jan 2006, 03:04 PM"

// Body is a composed message, ready for the gateway.
type Body string

// Hash returns the hex SHA-256 of the body.
func (b Body) Hash() string {
	sum := sha256.Sum256([]byte(b))
	return hex.EncodeToString(sum[:])
}

// Options configures link bases and length bounds.
type Options struct {
	BackendURL     string         // Base for action links
	FrontendURL    string         // Base for tracking links
	DefaultLimit   int            // Free-text bound in runes
	CategoryLimits map[string]int // Lower-case category → bound
	MaxBodyRunes   int            // Whole-message bound in runes
}

// Composer renders official and citizen messages.
type Composer struct {
	opts Options
}

// New creates a composer.
func New(opts Options) *Composer {
	opts.BackendURL = strings.TrimRight(opts.BackendURL, "/")
	opts.FrontendURL = strings.TrimRight(opts.FrontendURL, "/")
	return &Composer{opts: opts}
}

// Truncate bounds s to limit runes. When s is longer, the result ends in
// Marker and is exactly limit runes long.
func Truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	keep := limit - utf8.RuneCountInString(Marker)
	if keep < 0 {
		keep = 0
	}
	return string([]rune(s)[:keep]) + Marker
}

func (c *Composer) limitFor(category string) int {
	if n, ok := c.opts.CategoryLimits[strings.ToLower(strings.TrimSpace(category))]; ok {
		return n
	}
	return c.opts.DefaultLimit
}

// text trims and bounds a free-text field.
func (c *Composer) text(s, category string) string {
	return Truncate(strings.TrimSpace(s), c.limitFor(category))
}

// bound keeps the whole body within MaxBodyRunes, shortening head so the
// links in tail always survive.
func (c *Composer) bound(head, tail string) Body {
	max := c.opts.MaxBodyRunes
	if max <= 0 {
		return Body(head + tail)
	}
	room := max - utf8.RuneCountInString(tail)
	if room < utf8.RuneCountInString(Marker) {
		return Body(Truncate(head+tail, max))
	}
	return Body(Truncate(head, room) + tail)
}

// ActionLink is the official's link to act on a complaint.
func (c *Composer) ActionLink(cmp complaint.Complaint, tok token.ActionToken) string {
	return fmt.Sprintf("%s/api/complaints/action?id=%s&token=%s",
		c.opts.BackendURL, url.QueryEscape(cmp.ID), url.QueryEscape(tok.Secret))
}

// TrackingLink is the citizen's status page; it carries only the identifier.
func (c *Composer) TrackingLink(cmp complaint.Complaint) string {
	return fmt.Sprintf("%s/track?id=%s", c.opts.FrontendURL, url.QueryEscape(cmp.ID))
}

// Official composes the department official's notification.
func (c *Composer) Official(cmp complaint.Complaint, contact directory.DepartmentContact, tok token.ActionToken) Body {
	return c.OfficialLocalized(cmp, contact, tok, "")
}

// OfficialLocalized is Official with an optional translated description
// shown under the original.
func (c *Composer) OfficialLocalized(cmp complaint.Complaint, contact directory.DepartmentContact, tok token.ActionToken, translated string) Body {
	var b strings.Builder

	fmt.Fprintf(&b, "🚨 New Complaint : %s\n\n", cmp.ID)
	fmt.Fprintf(&b, "🏢 %s\n", contact.Name)
	fmt.Fprintf(&b, "🏷️ Category: %s\n", cmp.Category)
	fmt.Fprintf(&b, "📍 %s, %s\n", c.text(cmp.Location, cmp.Category), cmp.City)
	fmt.Fprintf(&b, "👤 %s\n", c.text(cmp.SubmitterName, cmp.Category))
	if !cmp.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "📅 %s\n", cmp.CreatedAt.Format(dateLayout))
	}
	fmt.Fprintf(&b, "\n💬 Details:\n%s\n", c.text(cmp.Description, cmp.Category))
	if t := strings.TrimSpace(translated); t != "" {
		fmt.Fprintf(&b, "🌐 %s\n", c.text(t, cmp.Category))
	}

	link := c.ActionLink(cmp, tok)
	tail := fmt.Sprintf("\n✅ Approve: %s&decision=approve\n❌ Reject: %s&decision=reject", link, link)

	return c.bound(b.String(), tail)
}

// Citizen composes the submission receipt for the citizen.
func (c *Composer) Citizen(cmp complaint.Complaint, trackingLink string) Body {
	var b strings.Builder

	fmt.Fprintf(&b, "✅ Complaint Registered\n\n")
	fmt.Fprintf(&b, "Hello %s, your complaint has been received.\n\n", c.text(cmp.SubmitterName, cmp.Category))
	fmt.Fprintf(&b, "🆔 Complaint ID: %s\n", cmp.ID)
	fmt.Fprintf(&b, "🏷️ Category: %s\n", cmp.Category)
	fmt.Fprintf(&b, "📍 %s, %s\n", c.text(cmp.Location, cmp.Category), cmp.City)
	fmt.Fprintf(&b, "💬 %s\n", c.text(cmp.Description, cmp.Category))

	tail := fmt.Sprintf("\n🔗 Track status: %s", trackingLink)
	return c.bound(b.String(), tail)
}

// CitizenStatus composes a status-change update for the citizen.
func (c *Composer) CitizenStatus(cmp complaint.Complaint, trackingLink string) Body {
	var b strings.Builder

	fmt.Fprintf(&b, "📢 Complaint Update\n\n")
	fmt.Fprintf(&b, "🆔 Complaint ID: %s\n", cmp.ID)
	fmt.Fprintf(&b, "🏷️ Category: %s\n", cmp.Category)
	fmt.Fprintf(&b, "📌 Status: %s\n", StatusLabel(cmp.Status))
	if !cmp.UpdatedAt.IsZero() {
		fmt.Fprintf(&b, "🕐 %s\n", cmp.UpdatedAt.Format(dateLayout))
	}
	fmt.Fprintf(&b, "💬 %s\n", c.text(cmp.Description, cmp.Category))

	tail := fmt.Sprintf("\n🔗 Track status: %s", trackingLink)
	return c.bound(b.String(), tail)
}

// StatusLabel is the citizen-facing wording of a status.
func StatusLabel(s complaint.Status) string {
	switch s {
	case complaint.StatusSubmitted:
		return "Submitted"
	case complaint.StatusAcknowledged:
		return "Acknowledged by the department"
	case complaint.StatusInProgress:
		return "Work in progress"
	case complaint.StatusResolved:
		return "Resolved"
	case complaint.StatusRejected:
		return "Rejected by the department"
	default:
		return string(s)
	}
}
