package extract

import (
	"errors"
	"fmt"

	"github.com/beam-cloud/untar/pkg/common"
	"github.com/beam-cloud/untar/pkg/ustar"
	"github.com/tidwall/btree"
)

type Op string

const (
	OpCreate  Op = "create"
	OpWrite   Op = "write"
	OpLink    Op = "link"
	OpSymlink Op = "symlink"
	OpMkdir   Op = "mkdir"
	OpDecode  Op = "decode"
	OpSkip    Op = "skip"
)

// EntryError describes why a single archive entry could not be applied.
type EntryError struct {
	Name   string
	Op     Op
	Offset int64
	Err    error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("%s %q (offset %d): %v", e.Op, e.Name, e.Offset, e.Err)
}

func (e *EntryError) Unwrap() error {
	return e.Err
}

// Outcome is the result of processing one header.
type Outcome struct {
	Name   string
	Type   ustar.EntryType
	Op     Op
	Offset int64
	Size   int64
	Err    error
}

func (o *Outcome) OK() bool {
	return o.Err == nil
}

// Skipped reports whether the entry was intentionally left alone because its
// type is not handled.
func (o *Outcome) Skipped() bool {
	return errors.Is(o.Err, common.ErrUnsupportedType)
}

// Report collects the outcome of every entry of an archive in stream order.
type Report struct {
	Outcomes []*Outcome
	End      EndReason
	Consumed int64

	index *btree.BTreeG[*Outcome]
}

func NewReport() *Report {
	less := func(a, b *Outcome) bool {
		return a.Name < b.Name
	}
	return &Report{
		index: btree.NewBTreeGOptions(less, btree.Options{NoLocks: true}),
	}
}

func (r *Report) add(o *Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	r.index.Set(o)
}

// Lookup returns the latest outcome recorded for an entry name.
func (r *Report) Lookup(name string) (*Outcome, bool) {
	return r.index.Get(&Outcome{Name: name})
}

// Names returns every distinct entry name in lexical order.
func (r *Report) Names() []string {
	names := make([]string, 0, r.index.Len())
	r.index.Scan(func(o *Outcome) bool {
		names = append(names, o.Name)
		return true
	})
	return names
}

// Failed returns the entries whose filesystem action failed.
func (r *Report) Failed() []*Outcome {
	var failed []*Outcome
	for _, o := range r.Outcomes {
		if !o.OK() && !o.Skipped() {
			failed = append(failed, o)
		}
	}
	return failed
}

// Skipped returns the entries with an unhandled type.
func (r *Report) Skipped() []*Outcome {
	var skipped []*Outcome
	for _, o := range r.Outcomes {
		if o.Skipped() {
			skipped = append(skipped, o)
		}
	}
	return skipped
}

// Err joins every entry failure, or returns nil when all entries succeeded.
func (r *Report) Err() error {
	var errs []error
	for _, o := range r.Failed() {
		errs = append(errs, o.Err)
	}
	return errors.Join(errs...)
}
