package auth

import (
	"context"
	"fmt"

	"github.com/EmpoweredVote/EV-Dashboard/internal/activity"
	"github.com/EmpoweredVote/EV-Dashboard/internal/flash"
	"github.com/EmpoweredVote/EV-Dashboard/internal/utils"
)

// Activity kinds written by the login, logout and registration flows.
const (
	KindAdminLogin            = "admin_login"
	KindUserLogin             = "user_login"
	KindFailedLogin           = "failed_login"
	KindLogout                = "logout"
	KindUserRegistration      = "user_registration"
	KindPasswordChanged       = "password_changed"
	KindForcePasswordRequired = "force_password_required"
)

const forcePasswordRequiredNotes = "First-login password change required"

// Establishment is the outcome of a successful login: what goes in the session
// and where the browser goes next.
type Establishment struct {
	State               utils.SessionData
	Redirect            string
	ForcePasswordChange bool
	Notice              flash.Message
}

// Establisher turns a Principal into session state.
type Establisher struct {
	activity activity.Recorder
}

func NewEstablisher(rec activity.Recorder) *Establisher {
	if rec == nil {
		rec = activity.Discard{}
	}
	return &Establisher{activity: rec}
}

func (e *Establisher) Establish(ctx context.Context, p *Principal) Establishment {
	user := p.User

	if p.Source == SourceAdmin {
		e.activity.IPActivity(ctx, KindAdminLogin, "User: "+user.Username)
		return Establishment{
			State: utils.SessionData{
				AdminLoggedIn: true,
				AuthSource:    string(SourceAdmin),
				UserID:        user.UserID,
				Username:      user.Username,
				IsAdmin:       true,
				IsVerified:    true,
			},
			Redirect: RouteDashboard,
			Notice:   flash.Message{Kind: flash.Success, Text: "Admin Login Successful!"},
		}
	}

	isAdmin := user.IsAdmin()
	state := utils.SessionData{
		AdminLoggedIn: true,
		AuthSource:    string(p.Source),
		UserID:        user.UserID,
		Username:      user.Username,
		IsAdmin:       isAdmin,
		IsDemo:        user.IsDemo,
		IsDemoMode:    !isAdmin && user.IsDemo,
		IsVerified:    user.IsVerified,
	}

	if user.MustChangePassword {
		state.ForceChangePassword = true
		e.activity.Audit(ctx, KindForcePasswordRequired, map[string]any{
			"username": user.Username,
			"details":  forcePasswordRequiredNotes,
		})
		return Establishment{
			State:               state,
			Redirect:            RouteChangePassword,
			ForcePasswordChange: true,
			Notice:              flash.Message{Kind: flash.Warning, Text: "You must change your password before continuing."},
		}
	}

	e.activity.IPActivity(ctx, KindUserLogin, "User: "+user.Username)
	return Establishment{
		State:    state,
		Redirect: RouteDashboard,
		Notice:   flash.Message{Kind: flash.Success, Text: fmt.Sprintf("Welcome back, %s!", user.Username)},
	}
}
