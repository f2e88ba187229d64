// Command commandability serves the member session, its realtime data
// aggregate, and coordinated report deletion over HTTP.
package main

import "github.com/Commandability/commandability-web-sub001/cmd/commandability/cmd"

func main() {
	cmd.Execute()
}
