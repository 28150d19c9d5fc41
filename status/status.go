// Package status defines the closed set of status codes returned by the
// request pipeline. The numeric values are an external contract: connected
// clients switch on them, so codes are never renumbered, only appended.
package status

import "strconv"

// Code is a pipeline outcome code.
type Code int

// Success and generic failure codes.
const (
	OK           Code = 200
	UnknownError Code = 250
)

// Structural codes: a required envelope field is missing.
const (
	MissingActorID       Code = 500
	MissingObjectID      Code = 501
	MissingTargetID      Code = 502
	MissingObjectURL     Code = 503
	MissingTargetDisplay Code = 504
	MissingActorURL      Code = 505
	MissingObjectContent Code = 506
	MissingObject        Code = 507
)

// Semantic codes: the envelope is well formed but the request is not allowed
// or does not make sense for the target.
const (
	InvalidTargetType  Code = 600
	InvalidACLType     Code = 601
	InvalidACLAction   Code = 602
	InvalidACLValue    Code = 603
	InvalidObjectType  Code = 605
	InvalidBanDuration Code = 606
	NotBase64          Code = 607
	UserNotInRoom      Code = 608
	UserIsBanned       Code = 609
	RoomAlreadyExists  Code = 610
	NotAllowed         Code = 611
	ValidationError    Code = 612
)

// Lookup codes: a referenced entity does not exist.
const (
	NoSuchUser      Code = 700
	NoSuchChannel   Code = 701
	NoSuchRoom      Code = 702
	NoUserInSession Code = 704
)

// String returns the symbolic name of the code.
func (c Code) String() string {
	switch c {
	case OK:
		return "OK"
	case UnknownError:
		return "UNKNOWN_ERROR"
	case MissingActorID:
		return "MISSING_ACTOR_ID"
	case MissingObjectID:
		return "MISSING_OBJECT_ID"
	case MissingTargetID:
		return "MISSING_TARGET_ID"
	case MissingObjectURL:
		return "MISSING_OBJECT_URL"
	case MissingTargetDisplay:
		return "MISSING_TARGET_DISPLAY_NAME"
	case MissingActorURL:
		return "MISSING_ACTOR_URL"
	case MissingObjectContent:
		return "MISSING_OBJECT_CONTENT"
	case MissingObject:
		return "MISSING_OBJECT"
	case InvalidTargetType:
		return "INVALID_TARGET_TYPE"
	case InvalidACLType:
		return "INVALID_ACL_TYPE"
	case InvalidACLAction:
		return "INVALID_ACL_ACTION"
	case InvalidACLValue:
		return "INVALID_ACL_VALUE"
	case InvalidObjectType:
		return "INVALID_OBJECT_TYPE"
	case InvalidBanDuration:
		return "INVALID_BAN_DURATION"
	case NotBase64:
		return "NOT_BASE64"
	case UserNotInRoom:
		return "USER_NOT_IN_ROOM"
	case UserIsBanned:
		return "USER_IS_BANNED"
	case RoomAlreadyExists:
		return "ROOM_ALREADY_EXISTS"
	case NotAllowed:
		return "NOT_ALLOWED"
	case ValidationError:
		return "VALIDATION_ERROR"
	case NoSuchUser:
		return "NO_SUCH_USER"
	case NoSuchChannel:
		return "NO_SUCH_CHANNEL"
	case NoSuchRoom:
		return "NO_SUCH_ROOM"
	case NoUserInSession:
		return "NO_USER_IN_SESSION"
	default:
		return "CODE_" + strconv.Itoa(int(c))
	}
}

// IsOK reports whether the code represents success.
func (c Code) IsOK() bool {
	return c == OK
}
