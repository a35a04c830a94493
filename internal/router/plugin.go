package router

import (
	"context"

	"golang.org/x/mod/semver"

	"github.com/keithlinneman/gethead/internal/xerrors"
)

// PluginMeta names a plugin and the host versions it supports. Versions
// are semver strings ("v1.3"); only major and minor take part in the
// check, so "v1.4" admits every v1.4.x host. An empty bound is open.
type PluginMeta struct {
	Name           string
	MinHostVersion string
	MaxHostVersion string
}

type Plugin interface {
	Meta() PluginMeta
	Setup(ctx context.Context, r *Router) error
}

// Register checks p against the host version and runs its Setup on the
// root scope. A plugin name can only be registered once.
func (r *Router) Register(ctx context.Context, p Plugin) error {
	meta := p.Meta()
	if meta.Name == "" {
		return xerrors.New("plugin has no name")
	}
	if err := CheckHostVersion(r.c.version, meta); err != nil {
		return err
	}

	c := r.c
	c.mu.Lock()
	if _, dup := c.plugins[meta.Name]; dup {
		c.mu.Unlock()
		return xerrors.Wrapf(ErrPluginRegistered, "%s", meta.Name)
	}
	c.plugins[meta.Name] = meta
	c.mu.Unlock()

	if err := p.Setup(ctx, &Router{c: c}); err != nil {
		c.mu.Lock()
		delete(c.plugins, meta.Name)
		c.mu.Unlock()
		return xerrors.Wrapf(err, "setup plugin %s", meta.Name)
	}
	c.logger.Info(ctx, "plugin registered", "plugin", meta.Name, "host_version", c.version)
	return nil
}

func (r *Router) HasPlugin(name string) bool {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	_, ok := r.c.plugins[name]
	return ok
}

// CheckHostVersion reports whether host falls inside the window declared
// by m.
func CheckHostVersion(host string, m PluginMeta) error {
	if !semver.IsValid(host) {
		return xerrors.Wrapf(ErrIncompatibleHost, "host version %q is not semver", host)
	}
	hv := semver.MajorMinor(host)
	if m.MinHostVersion != "" {
		if !semver.IsValid(m.MinHostVersion) {
			return xerrors.Newf("plugin %s: invalid min host version %q", m.Name, m.MinHostVersion)
		}
		if semver.Compare(hv, semver.MajorMinor(m.MinHostVersion)) < 0 {
			return xerrors.Wrapf(ErrIncompatibleHost, "%s needs host >= %s, have %s", m.Name, m.MinHostVersion, host)
		}
	}
	if m.MaxHostVersion != "" {
		if !semver.IsValid(m.MaxHostVersion) {
			return xerrors.Newf("plugin %s: invalid max host version %q", m.Name, m.MaxHostVersion)
		}
		if semver.Compare(hv, semver.MajorMinor(m.MaxHostVersion)) > 0 {
			return xerrors.Wrapf(ErrIncompatibleHost, "%s needs host <= %s, have %s", m.Name, m.MaxHostVersion, host)
		}
	}
	return nil
}
