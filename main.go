package main

import "github.com/frahmantamala/hospital-auth/cmd"

func main() {
	cmd.Execute()
}
