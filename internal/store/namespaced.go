package store

import (
	"context"

	"texttools/internal/models"
)

// Namespaced shares one backend between use cases by prefixing every job name
// with a kind, so "detect" and "categorize" jobs of the same name never collide.
// The prefixed name must still pass ValidateJobName in the backend.
type Namespaced struct {
	inner  JobStateStore
	prefix string
}

var _ JobStateStore = (*Namespaced)(nil)

func NewNamespaced(inner JobStateStore, kind string) *Namespaced {
	return &Namespaced{inner: inner, prefix: kind + "."}
}

func (n *Namespaced) Load(ctx context.Context, jobName string) ([]models.JobRecord, error) {
	return n.inner.Load(ctx, n.prefix+jobName)
}

func (n *Namespaced) Save(ctx context.Context, jobName string, records []models.JobRecord) error {
	return n.inner.Save(ctx, n.prefix+jobName, records)
}

func (n *Namespaced) Clear(ctx context.Context, jobName string) error {
	return n.inner.Clear(ctx, n.prefix+jobName)
}
