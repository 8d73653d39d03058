package main

import "github.com/xiaot623/gogo/chatbot/cmd"

func main() {
	cmd.Execute()
}
