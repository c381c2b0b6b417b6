package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dirops/authseed/internal/directory"
	"github.com/dirops/authseed/internal/errs"
	"github.com/dirops/authseed/internal/queue"
)

// process runs one message through the state machine and always finalizes:
// ack on success, poison-delete after too many failures, otherwise leave the
// message for natural redelivery once its visibility timeout lapses.
func (c *Consumer) process(ctx context.Context, msg queue.Message) {
	started := time.Now()

	err := c.handleBody(ctx, msg.Body)

	if err == nil {
		c.metrics.AddProcessed()
		c.log.Info(ctx, "deleting message from queue", "messageID", msg.ID)

		if err := c.queue.Delete(ctx, msg.ID, msg.Receipt); err != nil {
			c.log.Error(ctx, "failed to delete message", "messageID", msg.ID, "err", err)
		}

		c.log.Info(ctx, "processed message", "messageID", msg.ID, "elapsed", time.Since(started).String())
		return
	}

	c.metrics.AddError()
	c.log.Error(ctx, "failed to process message", "messageID", msg.ID, "dequeueCount", msg.DequeueCount, "err", err)

	if msg.DequeueCount >= poisonCutoff {
		c.metrics.AddPoison()
		c.log.Warn(ctx, "poison message cutoff reached, deleting", "messageID", msg.ID, "dequeueCount", msg.DequeueCount)

		if err := c.queue.Delete(ctx, msg.ID, msg.Receipt); err != nil {
			c.log.Error(ctx, "failed to delete poison message", "messageID", msg.ID, "err", err)
		}
		return
	}

	c.log.Warn(ctx, "message left in queue for redelivery", "messageID", msg.ID, "dequeueCount", msg.DequeueCount)
}

func (c *Consumer) handleBody(ctx context.Context, body []byte) error {
	var upd queue.UpdateMessage
	if err := json.Unmarshal(body, &upd); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}

	return c.HandleUpdate(ctx, upd)
}

// HandleUpdate applies one update message: resolve the user, then provision
// the email and phone auth methods the message carries. Shared by the queue
// consumer and the HTTP trigger.
func (c *Consumer) HandleUpdate(ctx context.Context, upd queue.UpdateMessage) error {
	if fields := errs.Check(upd); fields != nil {
		return fmt.Errorf("invalid update message: %v", fields)
	}

	usr, err := c.resolveUser(ctx, upd)
	if err != nil {
		return fmt.Errorf("resolveUser: %w", err)
	}

	if err := c.applyEmail(ctx, usr, upd); err != nil {
		return fmt.Errorf("applyEmail: %w", err)
	}

	if err := c.applyPhone(ctx, usr, upd); err != nil {
		return fmt.Errorf("applyPhone: %w", err)
	}

	return nil
}

// resolveUser picks a lookup strategy: the combined name/employee-number
// filter when either is present, otherwise the principal name directly.
func (c *Consumer) resolveUser(ctx context.Context, upd queue.UpdateMessage) (directory.User, error) {
	if upd.UserName != "" || upd.EmployeeID != "" {
		usr, err := c.dir.UserByNameAndEmployeeNumber(ctx, upd.UserName, upd.EmployeeID)
		if err != nil {
			return directory.User{}, fmt.Errorf("userByNameAndEmployeeNumber[%s,%s]: %w", upd.UserName, upd.EmployeeID, err)
		}
		return usr, nil
	}

	usr, err := c.dir.UserByPrincipalName(ctx, upd.UserPrincipalName)
	if err != nil {
		return directory.User{}, fmt.Errorf("userByPrincipalName[%s]: %w", upd.UserPrincipalName, err)
	}
	return usr, nil
}

func (c *Consumer) applyEmail(ctx context.Context, usr directory.User, upd queue.UpdateMessage) error {
	if upd.EmailAddress == "" {
		c.log.Info(ctx, "no email address in request, skipping", "userPrincipalName", usr.UserPrincipalName)
		return nil
	}

	existing, err := c.dir.EmailMethods(ctx, usr.ID)
	if err != nil {
		return fmt.Errorf("emailMethods: %w", err)
	}

	if len(existing) != 0 {
		c.log.Warn(ctx, "user already has email auth methods, skipping", "userPrincipalName", usr.UserPrincipalName)
		return nil
	}

	outcome, err := c.dir.AddEmailMethod(ctx, usr.ID, upd.EmailAddress)
	if err != nil {
		return fmt.Errorf("addEmailMethod: %w", err)
	}

	if outcome == directory.OutcomeDryRunSkipped {
		c.metrics.AddDryRun()
		c.log.Warn(ctx, "dry run enabled, skipped adding email auth method", "userPrincipalName", usr.UserPrincipalName)
		return nil
	}

	c.log.Info(ctx, "added email auth method", "userPrincipalName", usr.UserPrincipalName)
	return nil
}

// applyPhone provisions the primary phone, falling back to the home phone as
// the mobile number when no primary is present.
func (c *Consumer) applyPhone(ctx context.Context, usr directory.User, upd queue.UpdateMessage) error {
	phone := upd.PhoneNumber
	fromHomePhone := false

	if phone == "" && upd.HomePhone != "" {
		phone = upd.HomePhone
		fromHomePhone = true
	}

	if phone == "" {
		c.log.Info(ctx, "no phone number in request, skipping", "userPrincipalName", usr.UserPrincipalName)
		return nil
	}

	existing, err := c.dir.PhoneMethods(ctx, usr.ID)
	if err != nil {
		return fmt.Errorf("phoneMethods: %w", err)
	}

	if len(existing) != 0 {
		c.log.Warn(ctx, "user already has phone auth methods, skipping", "userPrincipalName", usr.UserPrincipalName)
		return nil
	}

	outcome, err := c.dir.AddPhoneMethod(ctx, usr.ID, phone)
	if err != nil {
		return fmt.Errorf("addPhoneMethod: %w", err)
	}

	if outcome == directory.OutcomeDryRunSkipped {
		c.metrics.AddDryRun()
		c.log.Warn(ctx, "dry run enabled, skipped adding phone auth method", "userPrincipalName", usr.UserPrincipalName)
		return nil
	}

	c.log.Info(ctx, "added phone auth method", "userPrincipalName", usr.UserPrincipalName, "fromHomePhone", fromHomePhone)
	return nil
}
