package main

import "SynapseCode/backend/go/client/synapsectl/cmd"

func main() {
	cmd.Execute()
}
