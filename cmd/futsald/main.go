// futsald is the futsal court booking server.
package main

import "github.com/Shivanand-hulikatti/futsal-booking/cmd"

func main() {
	cmd.Execute()
}
