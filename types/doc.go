// Package types defines the core entities of the Crucible evaluation
// framework: endpoints, recipes, cookbooks, datasets, prompt templates,
// runs, sessions and chat records, together with the structured error
// model shared by every subsystem.
//
// All entities are plain data with json tags and explicit Validate
// methods. Mutations go through typed update structs (EndpointUpdate,
// SessionUpdate, ...) whose pointer fields distinguish "unset" from
// "set to zero value"; there is no reflection-based patching.
package types
