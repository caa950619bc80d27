package main

import "BucketFM/cmd"

func main() {
	cmd.Execute()
}
