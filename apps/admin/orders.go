package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var errSearchDisabled = errors.New("search is not configured")

func (cli *commandLine) refundOrder(reference string) error {
	o, err := cli.orders.Refund(context.Background(), reference)
	if err != nil {
		return err
	}
	fmt.Printf("order %s is now %s\n", o.OrderNumber, o.Status)
	return nil
}

func (cli *commandLine) expireOrders(olderThan time.Duration) error {
	numbers, err := cli.orders.ExpireStale(context.Background(), olderThan)
	if err != nil {
		return err
	}
	if len(numbers) == 0 {
		fmt.Println("no stale orders")
		return nil
	}
	fmt.Printf("expired %d order(s): %s\n", len(numbers), strings.Join(numbers, ", "))
	return nil
}

func (cli *commandLine) reindexCourses() error {
	if cli.courses == nil {
		return errSearchDisabled
	}
	n, err := cli.courses.ReindexCourses(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("reindexed %d course(s)\n", n)
	return nil
}
