package agent

import (
	"context"
	"fmt"
)

// LeaveBalance is the remaining leave of one employee, in days.
type LeaveBalance struct {
	SickLeave     int `json:"sickLeave" yaml:"sick_leave"`
	VacationLeave int `json:"vacationLeave" yaml:"vacation_leave"`
	PersonalLeave int `json:"personalLeave" yaml:"personal_leave"`
	TotalUsed     int `json:"totalUsed" yaml:"total_used"`
}

// LeaveDirectory looks up leave balances.
type LeaveDirectory interface {
	Balance(ctx context.Context, userID string) (LeaveBalance, error)
}

// StaticLeaveDirectory serves balances from memory. Users without an entry
// get the DefaultUserID entry.
type StaticLeaveDirectory map[string]LeaveBalance

var _ LeaveDirectory = StaticLeaveDirectory(nil)

// DefaultLeaveDirectory returns the built-in sample balances.
func DefaultLeaveDirectory() StaticLeaveDirectory {
	return StaticLeaveDirectory{
		DefaultUserID: {SickLeave: 10, VacationLeave: 15, PersonalLeave: 5, TotalUsed: 25},
		"user123":     {SickLeave: 8, VacationLeave: 12, PersonalLeave: 3, TotalUsed: 32},
		"user456":     {SickLeave: 15, VacationLeave: 20, PersonalLeave: 7, TotalUsed: 13},
	}
}

// Balance returns the entry for userID, falling back to the default entry.
func (d StaticLeaveDirectory) Balance(ctx context.Context, userID string) (LeaveBalance, error) {
	if err := ctx.Err(); err != nil {
		return LeaveBalance{}, err
	}
	if b, ok := d[userID]; ok {
		return b, nil
	}
	if b, ok := d[DefaultUserID]; ok {
		return b, nil
	}
	return LeaveBalance{}, fmt.Errorf("%w: %s", ErrUnknownUser, userID)
}

// LeaveBalanceTool adapts dir to a ToolHandler taking a "userId" argument.
func LeaveBalanceTool(dir LeaveDirectory) ToolHandler {
	return func(ctx context.Context, args map[string]any) (any, error) {
		userID, _ := args["userId"].(string)
		if userID == "" {
			userID = DefaultUserID
		}
		return dir.Balance(ctx, userID)
	}
}
