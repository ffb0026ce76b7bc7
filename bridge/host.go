package bridge

import (
	"fmt"

	"github.com/user/wg-tunnel/internal/permission"
)

// consentIntent marks a consent dialog the host has to show.
type consentIntent struct{}

// hostPlatform adapts Host to permission.Platform.
type hostPlatform struct {
	host Host
}

func (p hostPlatform) Prepare() (permission.Intent, error) {
	needed, err := p.host.NeedsConsent()
	if err != nil {
		return nil, err
	}
	if !needed {
		return nil, nil
	}
	return consentIntent{}, nil
}

func (p hostPlatform) Foreground() permission.Activity {
	if !p.host.HasForeground() {
		return nil
	}
	return p
}

func (p hostPlatform) StartForResult(intent permission.Intent, requestCode int) error {
	if _, ok := intent.(consentIntent); !ok {
		return fmt.Errorf("unsupported intent %T", intent)
	}
	return p.host.StartConsent(int32(requestCode))
}
