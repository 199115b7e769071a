// Command rvtlb drives the Sv32 TLB model with synthetic or scripted
// workloads.
package main

import "github.com/sarchlab/rvtlb/cmd/rvtlb/cmd"

func main() {
	cmd.Execute()
}
