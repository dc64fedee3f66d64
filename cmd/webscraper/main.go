// Command webscraper runs the adaptive crawl controller.
package main

import "github.com/uridolan77/WebScraping-sub002/cmd"

func main() {
	cmd.Execute()
}
