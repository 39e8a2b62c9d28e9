package main

import "github.com/kamilpajak/deoptviewer/cmd/deoptviewer"

func main() {
	deoptviewer.Execute()
}
