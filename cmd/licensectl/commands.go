package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"machine-license/internal/license"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newKeygenCmd() *cobra.Command {
	var out string
	var force bool

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a new Ed25519 signing key pair",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(out); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite", out)
			}
			pubPath := license.PublicKeyPath(out)
			signer, err := license.GenerateKeyFiles(out, pubPath)
			if err != nil {
				return err
			}
			defer signer.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "private key: %s\npublic key:  %s\nkey id:      %s\n",
				out, pubPath, license.KeyID(signer.Public()))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "signing.pem", "private key output path")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing key")
	return cmd
}

func newIssueCmd() *cobra.Command {
	var (
		keyFile     string
		fingerprint string
		days        int
		metadata    string
		policy      = license.DefaultPolicy()
	)

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a license bound to a machine fingerprint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			signer, err := license.LoadSigner(keyFile)
			if err != nil {
				return err
			}
			authority, err := license.NewAuthority(policy, signer)
			if err != nil {
				signer.Close()
				return err
			}
			defer authority.Close()

			sl, err := authority.IssueLicenseDetailed(fingerprint, days, metadata)
			if err != nil {
				return err
			}
			if sl.ExpireDays != days {
				log.WithFields(log.Fields{
					"requested": days,
					"granted":   sl.ExpireDays,
				}).Warn("Expire days clamped to policy range")
			}
			fmt.Fprintln(cmd.OutOrStdout(), sl.License)
			return nil
		},
	}
	cmd.Flags().StringVarP(&keyFile, "key", "k", "signing.pem", "private key path")
	cmd.Flags().StringVarP(&fingerprint, "fingerprint", "f", "", "machine fingerprint")
	cmd.Flags().IntVarP(&days, "days", "d", 365, "validity in days")
	cmd.Flags().StringVarP(&metadata, "meta", "m", "", "metadata to embed, e.g. a brand")
	cmd.Flags().IntVar(&policy.MinDays, "min-days", policy.MinDays, "minimum validity in days")
	cmd.Flags().IntVar(&policy.MaxDays, "max-days", policy.MaxDays, "maximum validity in days")
	cmd.Flags().IntVar(&policy.MaxMetadataLen, "max-meta", policy.MaxMetadataLen, "maximum metadata length in bytes")
	cmd.Flags().BoolVar(&policy.Strict, "strict", false, "reject out of range days instead of clamping")
	_ = cmd.MarkFlagRequired("fingerprint")
	return cmd
}

func newVerifyCmd() *cobra.Command {
	var (
		pubFiles    []string
		fingerprint string
		revokedFile string
	)

	cmd := &cobra.Command{
		Use:   "verify LICENSE",
		Short: "Verify a license against public keys and the local fingerprint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := license.LoadPublicKeys(pubFiles...)
			if err != nil {
				return err
			}
			var opts []license.AuthorityOption
			if revokedFile != "" {
				revoked, err := loadRevoked(revokedFile)
				if err != nil {
					return err
				}
				opts = append(opts, license.WithRevocationChecker(license.RevocationFunc(func(lic string) bool {
					_, ok := revoked[lic]
					return ok
				})))
			}
			verifier, err := license.NewOfflineVerifier(keys, opts...)
			if err != nil {
				return err
			}

			res := verifier.Verify(context.Background(), args[0], fingerprint)
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "verdict: %s\n", res.Verdict)
			if res.Verdict.Valid() {
				fmt.Fprintf(w, "key id:  %s\nexpires: %s\nmeta:    %s\n",
					res.KeyID, res.Payload.ExpiresTime().Format(time.RFC3339), res.Payload.Metadata)
				return nil
			}
			return fmt.Errorf("license rejected: %s", res.Verdict)
		},
	}
	cmd.Flags().StringSliceVarP(&pubFiles, "pub", "p", []string{"signing.pub.pem"}, "trusted public key files")
	cmd.Flags().StringVarP(&fingerprint, "fingerprint", "f", "", "local machine fingerprint")
	cmd.Flags().StringVar(&revokedFile, "revoked", "", "file with one revoked license per line")
	_ = cmd.MarkFlagRequired("fingerprint")
	return cmd
}

// loadRevoked 读取吊销文件，每行一个注册码，# 开头为注释
func loadRevoked(path string) (map[string]struct{}, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	revoked := map[string]struct{}{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		canonical, err := license.CanonicalLicense(line)
		if err != nil {
			log.WithError(err).Warn("Skipping malformed entry in revocation file")
			continue
		}
		revoked[canonical] = struct{}{}
	}
	return revoked, scanner.Err()
}

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect LICENSE",
		Short: "Decode a license without checking its signature",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payloadBytes, sig, err := license.DecodeLicense(args[0])
			if err != nil {
				return err
			}
			payload, err := license.DecodePayload(payloadBytes, license.Limits{})
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			defer w.Flush()
			fmt.Fprintln(w, "WARNING:\tsignature not verified")
			fmt.Fprintf(w, "version:\t%d\n", payload.Version)
			fmt.Fprintf(w, "fingerprint hash:\t%s\n", payload.FingerprintHash)
			fmt.Fprintf(w, "issued:\t%s\n", payload.IssuedTime().Format(time.RFC3339))
			fmt.Fprintf(w, "expires:\t%s\n", payload.ExpiresTime().Format(time.RFC3339))
			fmt.Fprintf(w, "metadata:\t%q\n", payload.Metadata)
			fmt.Fprintf(w, "signature:\t%d bytes\n", len(sig))
			return nil
		},
	}
}

func newFingerprintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint RAW",
		Short: "Print the canonical form and hash of a machine fingerprint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			canonical, err := license.Canonicalize(args[0])
			if err != nil {
				return errors.New("fingerprint is empty or contains control characters")
			}
			hash, err := license.HashFingerprint(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "canonical: %s\nhash:      %s\n", canonical, hash)
			return nil
		},
	}
}
