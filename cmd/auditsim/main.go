// Command auditsim runs multi-agent audit-event simulations.
package main

func main() {
	Execute()
}
