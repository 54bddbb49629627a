// Package main is the entry point for the statekit CLI.
//
//	@title			statekit inspector API
//	@version		1.0
//	@description	Read live module state and dispatch actions.
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@BasePath		/
package main

import "github.com/joho/godotenv"

func main() {
	godotenv.Load() // Load .env file if present
	Execute()
}
