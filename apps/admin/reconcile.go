package main

import (
	"context"
	"fmt"
	"time"
)

// reconcile runs one sweep of the pending payment orders.
func (cli *commandLine) reconcile() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	res, err := cli.paymentSvc.SweepPending(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "checked: %d, paid: %d, errors: %d\n", res.Checked, res.Paid, res.Errors)
	return nil
}
