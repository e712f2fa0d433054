/*
Licensed to the Apache Software Foundation (ASF) under one
or more contributor license agreements.  See the NOTICE file
distributed with this work for additional information
regarding copyright ownership.  The ASF licenses this file
to you under the Apache License, Version 2.0 (the
"License"); you may not use this file except in compliance
with the License.  You may obtain a copy of the License at

  http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing,
software distributed under the License is distributed on an
"AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
KIND, either express or implied.  See the License for the
specific language governing permissions and limitations
under the License.
*/

package main

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/positron-amqp/positron/pkg/positron"
)

func newReceiveCmd(a *app) *cobra.Command {
	var (
		count    int
		linkName string
		qos      string
		durable  bool
		dynamic  bool
	)
	cmd := &cobra.Command{
		Use:   "receive [ADDRESS]",
		Short: "Receive messages from an address",
		Long: `Receive messages from ADDRESS and print their bodies, one per line, until
COUNT messages arrived or the command is interrupted. With --dynamic the
broker assigns the address, which is printed first.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := a.cfg.Receiver
			if linkName != "" {
				opts.LinkName = linkName
			}
			if qos != "" {
				opts.QoS = qos
			}
			opts.Durable = opts.Durable || durable
			opts.Dynamic = opts.Dynamic || dynamic
			address := ""
			if len(args) > 0 {
				address = args[0]
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			conn, err := a.client().Connect(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			finished := make(chan struct{})
			var once sync.Once
			received := 0
			handler := func(d *positron.Delivery) {
				m := d.Message()
				if body, err := m.BodyAsString(); err == nil {
					fmt.Fprintln(out, body)
				} else {
					fmt.Fprintf(out, "%v\n", m.Body)
				}
				received++
				if count > 0 && received >= count {
					once.Do(func() { close(finished) })
				}
			}
			// Deliveries are buffered until the handler is set, after the address is printed.
			r, err := conn.Receiver(ctx, address, &opts, nil)
			if err != nil {
				return fmt.Errorf("%w (close: %v)", err, a.closeConnection(conn))
			}
			if opts.Dynamic {
				fmt.Fprintf(out, "address: %s\n", r.Address())
			}
			r.Handler(handler)
			ended := make(chan struct{})
			conn.EndHandler(func() { close(ended) })

			select {
			case <-finished:
			case <-ctx.Done():
			case <-ended:
				return fmt.Errorf("connection to %s ended", a.cfg.Client.Address())
			}
			return a.closeConnection(conn)
		},
	}
	cmd.Flags().IntVarP(&count, "count", "c", 0, "stop after this many messages (0 receives until interrupted)")
	cmd.Flags().StringVar(&linkName, "link-name", "", "link name, required to resume a durable subscription")
	cmd.Flags().StringVar(&qos, "qos", "", "AT_MOST_ONCE or AT_LEAST_ONCE")
	cmd.Flags().BoolVar(&durable, "durable", false, "durable subscription, detached rather than closed on exit")
	cmd.Flags().BoolVar(&dynamic, "dynamic", false, "ask the broker to assign the address")
	return cmd
}
