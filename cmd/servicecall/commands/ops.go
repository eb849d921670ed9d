package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/servicecall/internal/app"
	"github.com/florianilch/servicecall/internal/secrets"
	"github.com/florianilch/servicecall/internal/servicecall"
	"github.com/florianilch/servicecall/internal/transport"
)

// tokenFlags describe an optional token endpoint for call, upload and download.
func tokenFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "token-url", Usage: "token endpoint; when set a bearer token is fetched first"},
		&cli.StringFlag{Name: "token-method", Usage: "token request method (GET|POST|PUT)", Value: "POST"},
		&cli.StringFlag{Name: "token-headers", Usage: "token request headers as a JSON object"},
		&cli.StringFlag{Name: "token-body", Usage: "token request body"},
	}
}

func tokenCommand(s *session) *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Fetch a token and print the token document",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "method", Usage: "request method (GET|POST|PUT)", Value: "POST"},
			&cli.StringFlag{Name: "url", Usage: "token endpoint", Required: true},
			&cli.StringFlag{Name: "headers", Usage: "headers as a JSON object; values may be keyring:<name>"},
			&cli.StringFlag{Name: "body", Usage: "request body"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			req, err := s.tokenRequest(cmd.String("method"), cmd.String("url"), cmd.String("headers"), optional(cmd, "body"))
			if err != nil {
				return err
			}

			d := app.NewDispatcher(s.cfg)
			tok, err := d.CreateToken(ctx, req)
			if tok != nil {
				if printErr := printJSON(cmd, tok.Describe()); printErr != nil {
					return printErr
				}
			}
			return err
		},
	}
}

func callCommand(s *session) *cli.Command {
	return &cli.Command{
		Name:  "call",
		Usage: "Call a service and print the result document",
		Flags: append(tokenFlags(),
			&cli.StringFlag{Name: "method", Usage: "request method (GET|POST|PUT)", Value: "GET"},
			&cli.StringFlag{Name: "url", Usage: "target URL", Required: true},
			&cli.StringFlag{Name: "headers", Usage: "headers as a JSON object; values may be keyring:<name>"},
			&cli.StringFlag{Name: "body", Usage: "request body"},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			method, err := transport.ParseMethod(cmd.String("method"))
			if err != nil {
				return err
			}
			headers, err := s.headers(cmd.String("headers"))
			if err != nil {
				return err
			}

			d := app.NewDispatcher(s.cfg)
			tokenID, err := s.prepareToken(ctx, cmd, d)
			if err != nil {
				return err
			}

			res, err := d.Call(ctx, servicecall.CallRequest{
				TokenID: tokenID,
				Method:  method,
				URL:     cmd.String("url"),
				Headers: headers,
				Body:    optional(cmd, "body"),
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
}

func uploadCommand(s *session) *cli.Command {
	return &cli.Command{
		Name:      "upload",
		Usage:     "Stream a local file to a service",
		ArgsUsage: "FILE",
		Flags: append(tokenFlags(),
			&cli.StringFlag{Name: "method", Usage: "request method (POST|PUT)", Value: "POST"},
			&cli.StringFlag{Name: "url", Usage: "target URL", Required: true},
			&cli.StringFlag{Name: "headers", Usage: "headers as a JSON object; values may be keyring:<name>"},
			&cli.StringFlag{Name: "content-type", Usage: "content type; probed from the file when empty"},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.NArg() != 1 {
				return cli.Exit("upload expects exactly one FILE argument", 2)
			}
			method, err := transport.ParseMethod(cmd.String("method"))
			if err != nil {
				return err
			}
			headers, err := s.headers(cmd.String("headers"))
			if err != nil {
				return err
			}

			d := app.NewDispatcher(s.cfg)
			tokenID, err := s.prepareToken(ctx, cmd, d)
			if err != nil {
				return err
			}

			res, err := d.Upload(ctx, servicecall.UploadRequest{
				TokenID:     tokenID,
				Method:      method,
				FilePath:    cmd.Args().First(),
				URL:         cmd.String("url"),
				ContentType: cmd.String("content-type"),
				Headers:     headers,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
}

// downloaded is printed after a successful download.
type downloaded struct {
	Path            string `json:"path"`
	Name            string `json:"name"`
	ContentType     string `json:"contentType"`
	Size            int64  `json:"size"`
	ResponseCode    int    `json:"responseCode"`
	ResponseMessage string `json:"responseMessage"`
}

func downloadCommand(s *session) *cli.Command {
	return &cli.Command{
		Name:  "download",
		Usage: "Download a file into a local directory",
		Flags: append(tokenFlags(),
			&cli.StringFlag{Name: "url", Usage: "file URL", Required: true},
			&cli.StringFlag{Name: "headers", Usage: "headers as a JSON object; values may be keyring:<name>"},
			&cli.StringFlag{Name: "output", Usage: "target directory", Value: "."},
			&cli.BoolFlag{Name: "force", Usage: "overwrite an existing file"},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			headers, err := s.headers(cmd.String("headers"))
			if err != nil {
				return err
			}

			// Stage in the output directory so the final rename stays on one filesystem.
			cfg := *s.cfg
			cfg.Download.Dir = cmd.String("output")
			d := app.NewDispatcher(&cfg)
			tokenID, err := s.prepareToken(ctx, cmd, d)
			if err != nil {
				return err
			}

			file, res, err := d.Download(ctx, servicecall.DownloadRequest{
				TokenID: tokenID,
				URL:     cmd.String("url"),
				Headers: headers,
			})
			if err != nil {
				return err
			}
			if file == nil {
				if printErr := printJSON(cmd, res); printErr != nil {
					return printErr
				}
				return fmt.Errorf("download failed: %d %s", res.StatusCode, res.Status)
			}

			target, err := place(file.Path, filepath.Join(cfg.Download.Dir, file.Name), cmd.Bool("force"))
			if err != nil {
				return err
			}
			return printJSON(cmd, downloaded{
				Path:            target,
				Name:            file.Name,
				ContentType:     file.ContentType,
				Size:            file.Size,
				ResponseCode:    res.StatusCode,
				ResponseMessage: res.Status,
			})
		},
	}
}

// place moves the staged download to target, refusing to replace an
// existing file unless force is set. The staged file is removed on failure.
func place(staged, target string, force bool) (string, error) {
	if !force {
		if _, err := os.Stat(target); err == nil {
			_ = os.Remove(staged)
			return "", fmt.Errorf("%w: %s already exists (use --force)", servicecall.ErrLocalIO, target)
		}
	}
	if err := os.Rename(staged, target); err != nil {
		_ = os.Remove(staged)
		return "", fmt.Errorf("%w: %w", servicecall.ErrLocalIO, err)
	}
	return target, nil
}

// tokenRequest parses a token template and resolves keyring references.
func (s *session) tokenRequest(method, url, headers string, body *string) (servicecall.TokenRequest, error) {
	m, err := transport.ParseMethod(method)
	if err != nil {
		return servicecall.TokenRequest{}, err
	}
	h, err := s.headers(headers)
	if err != nil {
		return servicecall.TokenRequest{}, err
	}
	return servicecall.TokenRequest{Method: m, URL: url, Headers: h, Body: body}, nil
}

// prepareToken creates the token described by the --token-* flags and
// returns its id, or "" when no token endpoint is given.
func (s *session) prepareToken(ctx context.Context, cmd *cli.Command, d *servicecall.Dispatcher) (string, error) {
	if cmd.String("token-url") == "" {
		return "", nil
	}

	req, err := s.tokenRequest(cmd.String("token-method"), cmd.String("token-url"), cmd.String("token-headers"), optional(cmd, "token-body"))
	if err != nil {
		return "", err
	}

	tok, err := d.CreateToken(ctx, req)
	var fetchErr *servicecall.FetchError
	if errors.As(err, &fetchErr) {
		if printErr := printJSON(cmd, tok.Describe()); printErr != nil {
			return "", printErr
		}
		return "", fmt.Errorf("token request failed: %w", err)
	}
	if err != nil {
		return "", err
	}
	return tok.ID(), nil
}

func (s *session) headers(text string) (map[string]string, error) {
	headers, err := servicecall.ParseHeaders(text)
	if err != nil {
		return nil, err
	}
	return secrets.New(s.cfg.Secrets.Service).ResolveHeaders(headers)
}

// optional returns the flag value, or nil when the flag was not given.
func optional(cmd *cli.Command, name string) *string {
	if !cmd.IsSet(name) {
		return nil
	}
	v := cmd.String(name)
	return &v
}

func printJSON(cmd *cli.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	w := io.Writer(os.Stdout)
	if root := cmd.Root(); root != nil && root.Writer != nil {
		w = root.Writer
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}
