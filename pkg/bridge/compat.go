package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/morezero/sdk-bridge/pkg/semver"
)

const compatLogPrefix = "bridge:compat"

// ErrIncompatibleRuntime is returned by CheckCompatibility when the runtime
// version falls outside the constraint.
var ErrIncompatibleRuntime = errors.New("incompatible native runtime")

// RuntimeVersion asks the runtime for its SDK version.
func (b *Bridge) RuntimeVersion(ctx context.Context) (string, error) {
	resp, err := b.Query(ctx, "Configuration", "getHiveSDKVersion", nil)
	if err != nil {
		return "", err
	}
	v := resp.Field("getHiveSDKVersion").String()
	if v == "" {
		return "", fmt.Errorf("%s - runtime did not report a version", compatLogPrefix)
	}
	return v, nil
}

// CheckCompatibility queries the runtime version and checks it against
// constraint. An incompatible runtime yields the result and an error
// wrapping ErrIncompatibleRuntime.
func (b *Bridge) CheckCompatibility(ctx context.Context, constraint string) (*semver.Compatibility, error) {
	version, err := b.RuntimeVersion(ctx)
	if err != nil {
		return nil, err
	}
	c, err := semver.Check(version, constraint)
	if err != nil {
		return nil, fmt.Errorf("%s - %w", compatLogPrefix, err)
	}
	if !c.Compatible {
		slog.Warn(fmt.Sprintf("%s - runtime %s is outside %q: %s", compatLogPrefix, version, constraint, c.Reason))
		return c, fmt.Errorf("%s - %w: %s", compatLogPrefix, ErrIncompatibleRuntime, c.Reason)
	}
	slog.Info(fmt.Sprintf("%s - runtime %s satisfies %q", compatLogPrefix, version, constraint))
	return c, nil
}
