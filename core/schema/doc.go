/*
Package schema defines declarative module definitions.

A definition names a module, its initial state and its actions. Actions are
built from a small set of operations instead of code, which is enough for
modules that only store what they are given.

# Module Definition

A module definition in YAML:

	namespace: user
	persist: true

	state:
	  userinfo: {}
	  token: ""

	actions:
	  SET_USER:  { set: [userinfo] }
	  SET_TOKEN: { set: [token] }
	  logout:    { reset: [userinfo, token] }

The same definition in TOML:

	namespace = "user"

	[state]
	token = ""

	[state.userinfo]

	[actions.SET_TOKEN]
	set = ["token"]

Persist defaults to true.

# Actions

Each action combines any of these operations, applied in this order as a
single state update:

  - reset:    keys restored to their declared values ("*" restores all)
  - assign:   constant values, e.g. { assign: { loggedIn: false } }
  - set:      positional arguments assigned to keys
  - merge:    the next argument, an object, merged over the state
  - dispatch: sibling actions run afterwards, without arguments

# Parsing

Load modules from YAML or TOML files:

	mod, err := schema.ParseFile("modules/user.yaml")
	modules, err := schema.ParseDir("modules/")

All modules are validated on parse. Invalid modules return an error.
Declaration turns a definition into a store.Declaration.
*/
package schema
