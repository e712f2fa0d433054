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
	"bufio"
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/positron-amqp/positron/pkg/amqp"
	"github.com/positron-amqp/positron/pkg/positron"
)

func newSendCmd(a *app) *cobra.Command {
	var (
		subject string
		replyTo string
		durable bool
		ack     bool
	)
	cmd := &cobra.Command{
		Use:   "send ADDRESS [MESSAGE...]",
		Short: "Send messages to an address",
		Long: `Send each MESSAGE argument as a string message to ADDRESS. With no
MESSAGE arguments, each line of standard input is sent.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bodies := args[1:]
			if len(bodies) == 0 {
				scanner := bufio.NewScanner(cmd.InOrStdin())
				for scanner.Scan() {
					bodies = append(bodies, scanner.Text())
				}
				if err := scanner.Err(); err != nil {
					return err
				}
			}
			ctx := cmd.Context()
			conn, err := a.client().Connect(ctx)
			if err != nil {
				return err
			}
			opts := a.cfg.Sender
			sendErr := send(ctx, conn, args[0], &opts, bodies, func(m *amqp.Message) {
				m.Subject, m.ReplyTo, m.Durable = subject, replyTo, durable
			}, ack)
			if err := multierr.Append(sendErr, a.closeConnection(conn)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent %d message(s) to %s\n", len(bodies), args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "message subject")
	cmd.Flags().StringVar(&replyTo, "reply-to", "", "message reply-to address")
	cmd.Flags().BoolVar(&durable, "durable", false, "mark messages durable")
	cmd.Flags().BoolVar(&ack, "ack", false, "wait for the peer to accept every message")
	return cmd
}

func send(ctx context.Context, conn *positron.Connection, address string, opts *positron.SenderOptions,
	bodies []string, decorate func(*amqp.Message), ack bool) error {
	s, err := conn.Sender(ctx, address, opts)
	if err != nil {
		return err
	}
	outcomes := make(chan error, len(bodies))
	for _, body := range bodies {
		m := amqp.NewMessageWith(body)
		decorate(m)
		var onAck func(error)
		if ack {
			onAck = func(err error) { outcomes <- err }
		}
		if err := s.SendWithAck(m, onAck); err != nil {
			return err
		}
	}
	if !ack {
		return nil
	}
	var errs error
	for range bodies {
		select {
		case err := <-outcomes:
			errs = multierr.Append(errs, err)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return errs
}
