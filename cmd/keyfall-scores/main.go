// Command keyfall-scores inspects songs and manages the keyfall high-score
// table.
package main

func main() {
	Execute()
}
