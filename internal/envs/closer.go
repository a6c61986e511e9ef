package envs

import "sync"

// withTeardown composes an extra cleanup step around an environment's
// close operation: teardown runs first, then the inner Close. Repeated
// Close calls are no-ops, so an already-terminated worker is never
// re-signaled.
type withTeardown struct {
	Environment
	teardown func() error
	once     sync.Once
	err      error
}

// WithTeardown wraps env so that Close first invokes teardown (worker
// process interrupt + wait + channel release) and then the wrapped Close.
func WithTeardown(env Environment, teardown func() error) Environment {
	return &withTeardown{Environment: env, teardown: teardown}
}

func (w *withTeardown) Close() error {
	w.once.Do(func() {
		w.err = w.teardown()
		if cerr := w.Environment.Close(); cerr != nil && w.err == nil {
			w.err = cerr
		}
	})
	return w.err
}
