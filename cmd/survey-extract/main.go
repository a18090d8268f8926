// Command survey-extract turns scanned directional survey documents into
// structured well records.
package main

func main() {
	Execute()
}
