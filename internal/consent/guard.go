// Package consent is the single place a send authorization is decided.
package consent

import (
	"fmt"
	"time"

	"push-relay-backend/internal/model"
)

// Denial reasons.
const (
	ReasonNoPermission     = "no_permission"
	ReasonNoDeliveryTarget = "no_delivery_target"
)

// Denial explains why a send was not authorized.
type Denial struct {
	Reason string
}

func (d *Denial) Error() string {
	return fmt.Sprintf("consent denied: %s", d.Reason)
}

// CheckSend decides whether requestingOrigin may send to the subscription.
// Default-deny: a missing permission entry is treated exactly like an
// explicit denial.
func CheckSend(sub *model.Subscription, requestingOrigin string) error {
	perm, ok := sub.Permissions[requestingOrigin]
	if !ok || !perm.Granted {
		return &Denial{Reason: ReasonNoPermission}
	}
	if !sub.HasCloudPushTarget() && !sub.HasWebPushTarget() {
		return &Denial{Reason: ReasonNoDeliveryTarget}
	}
	return nil
}

// GrantedAt returns the grant timestamp for requestingOrigin, if granted.
func GrantedAt(sub *model.Subscription, requestingOrigin string) (bool, time.Time) {
	perm, ok := sub.Permissions[requestingOrigin]
	if !ok || !perm.Granted {
		return false, time.Time{}
	}
	return true, perm.GrantedAt
}
