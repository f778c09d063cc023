// Command physctl boots the frame allocator over a simulated machine and
// inspects, benchmarks and stress-tests it.
package main

func main() {
	execute()
}
