package trap

import (
	"errors"
	"fmt"
	"iter"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/obsidianstack/trapbridge/internal/mib"
)

// Source property keys present on every Record.
const (
	PropHostname  = "hostname"
	PropIPAddress = "ipaddress"
	PropDomain    = "domain"
)

// ErrNoIdentifier is returned when a notification carries no trap identity.
var ErrNoIdentifier = errors.New("trap: notification has no identifier")

// Record is one decoded notification: the trap identity, its argument values
// keyed by symbol, and properties describing the sender.
// A Record is immutable once built.
type Record struct {
	oid        string
	id         mib.Symbol
	args       map[mib.Symbol]string
	props      map[string]string
	receivedAt time.Time
}

// NewRecord builds a Record, copying args and props. The hostname, ipaddress
// and domain properties are always present, empty when not supplied.
func NewRecord(oid string, id mib.Symbol, args map[mib.Symbol]string, props map[string]string) (*Record, error) {
	if id.IsZero() {
		return nil, ErrNoIdentifier
	}
	r := &Record{
		oid:        mib.NormalizeOID(oid),
		id:         id,
		args:       make(map[mib.Symbol]string, len(args)),
		props:      make(map[string]string, len(props)+3),
		receivedAt: time.Now().UTC(),
	}
	if r.oid == "" && !id.Resolved() {
		r.oid = id.Name
	}
	maps.Copy(r.args, args)
	maps.Copy(r.props, props)
	for _, k := range []string{PropHostname, PropIPAddress, PropDomain} {
		if _, ok := r.props[k]; !ok {
			r.props[k] = ""
		}
	}
	return r, nil
}

// OID returns the numeric trap identifier.
func (r *Record) OID() string { return r.oid }

// Identifier returns the resolved trap identity.
func (r *Record) Identifier() mib.Symbol { return r.id }

// ReceivedAt returns when the Record was built.
func (r *Record) ReceivedAt() time.Time { return r.receivedAt }

// Arg returns the display value of one argument.
func (r *Record) Arg(sym mib.Symbol) (string, bool) {
	v, ok := r.args[sym]
	return v, ok
}

// Arguments iterates the argument values in no particular order.
func (r *Record) Arguments() iter.Seq2[mib.Symbol, string] {
	return maps.All(r.args)
}

// ArgumentKeys returns the argument identities sorted by name.
func (r *Record) ArgumentKeys() []mib.Symbol {
	return slices.SortedFunc(maps.Keys(r.args), func(a, b mib.Symbol) int {
		if c := strings.Compare(a.Module, b.Module); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
}

// NumArgs returns the number of arguments.
func (r *Record) NumArgs() int { return len(r.args) }

// Property returns one source property.
func (r *Record) Property(key string) (string, bool) {
	v, ok := r.props[key]
	return v, ok
}

// Properties iterates the source properties.
func (r *Record) Properties() iter.Seq2[string, string] {
	return maps.All(r.props)
}

// Source returns the sender's address.
func (r *Record) Source() string { return r.props[PropIPAddress] }

func (r *Record) String() string {
	return fmt.Sprintf("<Record %s from %s args=%d>", r.id, r.Source(), len(r.args))
}
