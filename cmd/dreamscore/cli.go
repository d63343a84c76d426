package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dreams-grid/dreams-core/internal/audit"
	"github.com/dreams-grid/dreams-core/internal/infrastructure/logging"
	"github.com/dreams-grid/dreams-core/internal/plant"
)

// withComponents loads config, builds the shared components and runs fn.
// One-shot commands run the sender directly; a managed daemon is assumed
// to be up.
func withComponents(ctx context.Context, flags *globalFlags, fn func(*components) error) error {
	cfg, err := loadConfig(flags, false)
	if err != nil {
		return err
	}
	log := logging.CLI(flags.logLevel, version)

	comp, err := buildComponents(ctx, cfg, log, nil)
	if err != nil {
		return err
	}
	defer comp.Close() //nolint:errcheck // one-shot command

	return fn(comp)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseValue(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("value %q is not a number", s)
	}
	return v, nil
}

func newRegisterCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register gateways and plants",
	}
	cmd.AddCommand(newRegisterGatewayCmd(flags), newRegisterPlantCmd(flags))
	return cmd
}

func newRegisterGatewayCmd(flags *globalFlags) *cobra.Command {
	g := &plant.Gateway{}

	cmd := &cobra.Command{
		Use:   "gateway ID",
		Short: "Register a site gateway",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g.ID = args[0]
			return withComponents(cmd.Context(), flags, func(c *components) error {
				if err := c.plants.CreateGateway(cmd.Context(), g); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), g)
			})
		},
	}
	cmd.Flags().StringVar(&g.IPAddress, "ip", "", "gateway IP address (required)")
	cmd.Flags().IntVar(&g.Port, "port", plant.DefaultPort, "DNP3 TCP port")
	cmd.Flags().StringVar(&g.SiteToken, "token", "", "site token (required)")
	_ = cmd.MarkFlagRequired("ip")    //nolint:errcheck // flag exists
	_ = cmd.MarkFlagRequired("token") //nolint:errcheck // flag exists
	return cmd
}

func newRegisterPlantCmd(flags *globalFlags) *cobra.Command {
	p := &plant.Plant{}
	var category string

	cmd := &cobra.Command{
		Use:   "plant PLANT_NO",
		Short: "Register a plant; the DNP3 address is allocated unless --address is given",
		Long: `Register a plant behind a gateway. Without --address the next free DNP3
address on the gateway is assigned (4 on an empty gateway). A running
managed master daemon only sees the plant after a reload (SIGHUP to serve).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p.PlantNo = args[0]
			p.Category = plant.Category(category)
			return withComponents(cmd.Context(), flags, func(c *components) error {
				if err := c.registration.Register(cmd.Context(), p); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), p)
			})
		},
	}
	cmd.Flags().StringVar(&p.GatewayID, "gateway", "", "gateway ID (required)")
	cmd.Flags().StringVar(&p.Name, "name", "", "plant name (required)")
	cmd.Flags().StringVar(&category, "category", string(plant.CategoryGrid), "grid or energyStorage")
	cmd.Flags().IntVar(&p.DNP3Address, "address", 0, "explicit DNP3 address")
	_ = cmd.MarkFlagRequired("gateway") //nolint:errcheck // flag exists
	_ = cmd.MarkFlagRequired("name")    //nolint:errcheck // flag exists
	return cmd
}

func newMetersCmd(flags *globalFlags) *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "meters PLANT_NO",
		Short: "List the plants on the gateway of PLANT_NO",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd.Context(), flags, func(c *components) error {
				meters, err := c.service.PlantMeterNo(cmd.Context(), args[0], token)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), meters)
			})
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "site token of the gateway (required)")
	_ = cmd.MarkFlagRequired("token") //nolint:errcheck // flag exists
	return cmd
}

func newPollCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "poll PLANT_NO",
		Short: "Run an integrity poll",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd.Context(), flags, func(c *components) error {
				res, err := c.service.IntegrityPoll(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
}

func newControlCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "control PLANT_NO TYPE VALUE",
		Short: "Write a power control set-point (e.g. active_power 50)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := parseValue(args[2])
			if err != nil {
				return err
			}
			return withComponents(cmd.Context(), flags, func(c *components) error {
				res, err := c.service.PowerControl(cmd.Context(), args[0], args[1], value)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
}

func newDeadbandCmd(flags *globalFlags) *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "deadband PLANT_NO FIELD VALUE",
		Short: "Set a deadband threshold (e.g. P_SUM 0.025)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := parseValue(args[2])
			if err != nil {
				return err
			}
			return withComponents(cmd.Context(), flags, func(c *components) error {
				res, err := c.service.SetDeadband(cmd.Context(), args[0], args[1], value, category)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "deadband table (default: the plant's category)")
	return cmd
}

func newLogCmd(flags *globalFlags) *cobra.Command {
	var filter audit.Filter
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the command log, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withComponents(cmd.Context(), flags, func(c *components) error {
				res, err := c.commandLog.List(cmd.Context(), filter)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().StringVar(&filter.PlantNo, "plant", "", "only this plant")
	cmd.Flags().StringVar(&filter.Outcome, "outcome", "", "only this outcome (ok, uncertain, ...)")
	cmd.Flags().IntVar(&filter.Limit, "limit", 50, "page size (max 200)")
	cmd.Flags().IntVar(&filter.Offset, "offset", 0, "entries to skip")
	return cmd
}
