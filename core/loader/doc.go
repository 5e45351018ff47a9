// Package loader registers and loads HTTP features.
//
// A feature implements Feature:
//
//	type Feature interface {
//	    Name() string
//	    IsEnabled() bool
//	    Load(app fiber.Router) error
//	}
//
// Manager.LoadAll mounts every enabled feature in registration order. Features
// such as restore and integrity are built and tested in isolation and wired
// together by the start command.
package loader
