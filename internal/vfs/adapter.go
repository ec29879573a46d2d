// Package vfs presents a flat object store as a hierarchical filesystem.
//
// Directories are inferred from key prefixes; an empty directory is kept
// visible by a zero-length placeholder object whose key ends with "/".
// Rename and recursive delete are built from per-object copy and delete and
// report PartialFailure when they stop halfway.
//
// Every operation resolves its path, fetches credentials once, runs its
// store calls and returns either a result or an *fserr.Error. Nothing is
// cached between operations.
package vfs

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/s3fs-fuse/bucketfs/internal/credentials"
	"github.com/s3fs-fuse/bucketfs/internal/fserr"
	"github.com/s3fs-fuse/bucketfs/internal/metrics"
	"github.com/s3fs-fuse/bucketfs/internal/objectstore"
	"github.com/s3fs-fuse/bucketfs/internal/vpath"
)

// Adapter is the filesystem façade. It is safe for concurrent use; it
// holds no per-operation state.
type Adapter struct {
	provider credentials.Provider
	client   *objectstore.Client
	log      logrus.FieldLogger
	recorder metrics.Recorder
	dirTimes bool
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log logrus.FieldLogger) Option {
	return func(a *Adapter) { a.log = log }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(a *Adapter) { a.recorder = r }
}

// WithDirectoryTimes makes List issue one extra recursive listing to stamp
// each directory entry with its newest descendant's modification time.
func WithDirectoryTimes(enabled bool) Option {
	return func(a *Adapter) { a.dirTimes = enabled }
}

// New creates an adapter.
func New(provider credentials.Provider, client *objectstore.Client, opts ...Option) *Adapter {
	discard := logrus.New()
	discard.SetLevel(logrus.PanicLevel)

	a := &Adapter{
		provider: provider,
		client:   client,
		log:      discard,
		recorder: metrics.Noop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// op tracks one logical operation from path resolution to its outcome.
type op struct {
	a         *Adapter
	name      string
	path      string
	container string
	start     time.Time
}

func (a *Adapter) begin(name, path string) *op {
	return &op{a: a, name: name, path: path, start: time.Now()}
}

// resolve parses path and records its container for logging and metrics.
func (o *op) resolve(path string) (vpath.Path, error) {
	p, err := vpath.Parse(path)
	if err != nil {
		return vpath.Path{}, err
	}
	if o.container == "" {
		o.container = p.Container
	}
	return p, nil
}

// credentials fetches credentials for this operation's call chain. A
// provider that cannot produce any yields NotAuthenticated; the provider's
// own error, transport failures included, stays reachable through Unwrap.
func (o *op) credentials(ctx context.Context) (*credentials.Credentials, error) {
	creds, err := o.a.provider.GetCredentials(ctx)
	if err != nil {
		if fserr.KindOf(err) == fserr.NotAuthenticated {
			return nil, err
		}
		return nil, &fserr.Error{
			Kind: fserr.NotAuthenticated,
			Op:   "credentials",
			Msg:  "credentials unavailable",
			Err:  err,
		}
	}
	return creds, nil
}

// finish logs and records the outcome. A NotAuthenticated failure drops any
// cached credentials so the next operation fetches fresh ones.
func (o *op) finish(err error) {
	elapsed := time.Since(o.start)
	o.a.recorder.RecordOperation(o.name, o.container, err, elapsed)

	entry := o.a.log.WithFields(logrus.Fields{
		"op":       o.name,
		"path":     o.path,
		"duration": elapsed,
	})

	switch kind := fserr.KindOf(err); {
	case err == nil:
		entry.Debug("operation succeeded")
	case kind == fserr.PartialFailure:
		entry.WithError(err).WithField("residue", fserr.ResidueOf(err)).Error("operation left residue")
	case kind == fserr.NotAuthenticated:
		if inv, ok := o.a.provider.(credentials.Invalidator); ok {
			inv.Invalidate()
		}
		entry.WithError(err).Warn("operation not authenticated")
	default:
		entry.WithError(err).WithField("kind", kind.String()).Warn("operation failed")
	}
}

// ListContainers lists the containers visible to the caller whose name
// starts with prefix.
func (a *Adapter) ListContainers(ctx context.Context, prefix string) (_ []objectstore.ContainerInfo, err error) {
	o := a.begin("list_containers", prefix)
	defer func() { o.finish(err) }()

	creds, err := o.credentials(ctx)
	if err != nil {
		return nil, err
	}
	return a.client.ListContainers(ctx, creds, prefix)
}
