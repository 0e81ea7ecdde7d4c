// SPDX-License-Identifier: MPL-2.0

// Command mp builds and restructures SOAR marketplace integrations.
package main

import cmd "github.com/soarhub/mp/cmd/mp"

func main() {
	cmd.Execute()
}
