package model

import "errors"

var ErrorInvalidUsernameOrPassword = errors.New("invalid username or password")
var ErrorUserNotFound = errors.New("user not found")
var ErrorUserExists = errors.New("user already exists")
var ErrorNoKeyProvisioned = errors.New("no signing key provisioned")
var ErrorSenderMismatch = errors.New("sender mismatch")
var ErrorFollowerNotFound = errors.New("follower not found")
