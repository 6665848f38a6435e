/*
Copyright 2020 Google LLC

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/spf13/viper"
)

// sendReport emails a plain-text report via SendGrid. Requires
// sendgrid_api_key and from in the config.
func sendReport(toAddress, subject, body string) error {
	apiKey := viper.GetString("sendgrid_api_key")
	if apiKey == "" {
		return fmt.Errorf("sendgrid_api_key not configured")
	}
	fromAddress := viper.GetString("from")
	if fromAddress == "" {
		return fmt.Errorf("from address not configured")
	}

	from := mail.NewEmail("neural-critic", fromAddress)
	to := mail.NewEmail(toAddress, toAddress)
	message := mail.NewSingleEmail(from, subject, to, body, body)
	client := sendgrid.NewSendClient(apiKey)
	if _, err := client.Send(message); err != nil {
		return fmt.Errorf("sendReport: %w", err)
	}
	return nil
}
