// Command ecocityctl administers the EcoCity backend database.
//
//	ecocityctl user create admin --password-stdin < pw.txt
//	ecocityctl user set-password admin --password 'n3w-pass'
//	ecocityctl sessions purge
package main

import "github.com/sakif/ecocity-backend/internal/cli"

func main() {
	cli.Execute()
}
